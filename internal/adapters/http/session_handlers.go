package httpadapter

import (
	"net/http"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

func (rt *Router) registerSessionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/createSession", rt.authorized(domain.PermCreateSession, rt.createSession))
	mux.HandleFunc("PATCH /session/addUser/{id}", rt.authorized(domain.PermAddUser, rt.addUser))
	mux.HandleFunc("PATCH /session/deleteUser/{id}", rt.authorized(domain.PermDeleteUser, rt.deleteUser))
	mux.HandleFunc("POST /session/joinSession/{id}", rt.authorized(domain.PermJoinSession, rt.joinSession))
	mux.HandleFunc("GET /session/getAllSessions", rt.authorized(domain.PermGetSessions, rt.listSessions))
	mux.HandleFunc("GET /session/getActiveSessions", rt.authorized(domain.PermGetSessions, rt.activeSessions))
	mux.HandleFunc("GET /session/getSessionsByUserId", rt.authorized(domain.PermGetSessions, rt.sessionsByUser))
	mux.HandleFunc("GET /session/getSessionsByDate", rt.authorized(domain.PermGetSessions, rt.sessionsByDate))
	mux.HandleFunc("GET /session/getSessionsByMonth", rt.authorized(domain.PermGetSessions, rt.sessionsByMonth))
	mux.HandleFunc("GET /session/getSessionBySessionId/{id}", rt.authorized(domain.PermGetSessions, rt.getSession))
	mux.HandleFunc("POST /session/upload-session-document/{id}", rt.authorized(domain.PermUploadSessionDocument, rt.uploadSessionDocument))
	mux.HandleFunc("POST /session/send-session-for-notarization/{id}", rt.authorized(domain.PermSendSessionForNotarization, rt.sendForNotarization))
}

type createSessionRequest struct {
	SessionName   string                     `json:"sessionName"`
	NotaryField   domain.NotarizationField   `json:"notaryField"`
	NotaryService domain.NotarizationService `json:"notaryService"`
	StartDate     string                     `json:"startDate"`
	StartTime     string                     `json:"startTime"`
	EndDate       string                     `json:"endDate"`
	EndTime       string                     `json:"endTime"`
	Users         []string                   `json:"users"`
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := rt.svc.Sessions.Create(r.Context(), caller, domain.NewSession{
		SessionName:   req.SessionName,
		NotaryField:   req.NotaryField,
		NotaryService: req.NotaryService,
		StartDate:     req.StartDate,
		StartTime:     req.StartTime,
		EndDate:       req.EndDate,
		EndTime:       req.EndTime,
		Users:         req.Users,
	})
	rt.writeSession(w, r, "createSession", http.StatusCreated, session, err)
}

type addUsersRequest struct {
	Users []string `json:"users"`
}

func (rt *Router) addUser(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req addUsersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := rt.svc.Sessions.AddUsers(r.Context(), caller, r.PathValue("id"), req.Users)
	rt.writeSession(w, r, "addUser", http.StatusOK, session, err)
}

type deleteUserRequest struct {
	Email string `json:"email"`
}

func (rt *Router) deleteUser(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req deleteUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := rt.svc.Sessions.DeleteUser(r.Context(), caller, r.PathValue("id"), req.Email)
	rt.writeSession(w, r, "deleteUser", http.StatusOK, session, err)
}

type joinSessionRequest struct {
	Action string `json:"action"`
}

func (rt *Router) joinSession(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req joinSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	response, ok := domain.ParseJoinAction(req.Action)
	if !ok {
		writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "join session", "action must be accept or reject"))
		return
	}
	session, err := rt.svc.Sessions.Join(r.Context(), caller, r.PathValue("id"), response)
	rt.writeSession(w, r, "joinSession", http.StatusOK, session, err)
}

func (rt *Router) listSessions(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	sessions, err := rt.svc.Sessions.List(r.Context(), caller)
	writeSessions(w, r, sessions, err)
}

func (rt *Router) activeSessions(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	sessions, err := rt.svc.Sessions.ListActive(r.Context(), caller)
	writeSessions(w, r, sessions, err)
}

func (rt *Router) sessionsByUser(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	sessions, err := rt.svc.Sessions.ListByUser(r.Context(), caller)
	writeSessions(w, r, sessions, err)
}

func (rt *Router) sessionsByDate(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	sessions, err := rt.svc.Sessions.ListByDate(r.Context(), caller, r.URL.Query().Get("date"))
	writeSessions(w, r, sessions, err)
}

func (rt *Router) sessionsByMonth(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	sessions, err := rt.svc.Sessions.ListByMonth(r.Context(), caller, r.URL.Query().Get("date"))
	writeSessions(w, r, sessions, err)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	session, err := rt.svc.Sessions.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) uploadSessionDocument(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	form, err := parseUploadForm(w, r, "files")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.close()

	uploads := form.files("files")
	session, err := rt.svc.Sessions.UploadDocuments(r.Context(), caller, r.PathValue("id"), uploads)
	if err == nil || committed(err) {
		rt.recorder.RecordUpload("session", uploadSizes(uploads)...)
	}
	rt.writeSession(w, r, "upload-session-document", http.StatusOK, session, err)
}

func (rt *Router) sendForNotarization(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	session, err := rt.svc.Sessions.SendForNotarization(r.Context(), caller, r.PathValue("id"))
	if err == nil || committed(err) {
		rt.recorder.RecordTransition(string(domain.ActionCreate), string(domain.StatusPending))
	}
	rt.writeSession(w, r, "send-session-for-notarization", http.StatusOK, session, err)
}

// writeSession renders a single-session mutation result, including the
// saved-but-not-notified case.
func (rt *Router) writeSession(w http.ResponseWriter, r *http.Request, endpoint string, status int, session *domain.Session, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, session)
	case committed(err) && session != nil:
		rt.recorder.RecordNotificationFailure(endpoint)
		writePartialFailure(w, r, session.ID, string(session.Status), err)
	default:
		writeError(w, r, err)
	}
}

func writeSessions(w http.ResponseWriter, r *http.Request, sessions []domain.Session, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sessions))
}
