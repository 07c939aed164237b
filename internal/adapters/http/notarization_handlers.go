package httpadapter

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

func (rt *Router) registerNotarizationRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /notarization/upload-files", rt.authorized(domain.PermUploadDocuments, rt.uploadFiles))
	mux.HandleFunc("GET /notarization/history", rt.authorized(domain.PermGetHistory, rt.history))
	mux.HandleFunc("GET /notarization/getStatusById/{id}", rt.getStatusByID)
	mux.HandleFunc("GET /notarization/status-history/{id}", rt.authorized(domain.PermGetStatusHistory, rt.statusHistory))
	mux.HandleFunc("GET /notarization/getDocumentByRole", rt.authorized(domain.PermGetDocumentByRole, rt.documentsByRole))
	mux.HandleFunc("PATCH /notarization/forwardDocumentStatus/{id}", rt.authorized(domain.PermForwardDocumentStatus, rt.forwardDocumentStatus))
	mux.HandleFunc("GET /notarization/getAllNotarization", rt.authorized(domain.PermGetAllNotarization, rt.allNotarization))
	mux.HandleFunc("GET /notarization/getApproveHistory", rt.authorized(domain.PermGetApproveHistory, rt.approveHistory))

	mux.HandleFunc("POST /notarization/approve-signature-by-user/{id}",
		rt.authorized(domain.PermApproveSignatureByUser, rt.approveSignature(domain.SubjectDocument, domain.PartyUser)))
	mux.HandleFunc("POST /notarization/approve-signature-by-secretary/{id}",
		rt.authorized(domain.PermApproveSignatureBySecretary, rt.approveSignature(domain.SubjectDocument, domain.PartySecretary)))
	mux.HandleFunc("POST /session/approve-signature-by-user/{id}",
		rt.authorized(domain.PermApproveSignatureByUser, rt.approveSignature(domain.SubjectSession, domain.PartyUser)))
	mux.HandleFunc("POST /session/approve-signature-by-secretary/{id}",
		rt.authorized(domain.PermApproveSignatureBySecretary, rt.approveSignature(domain.SubjectSession, domain.PartySecretary)))
}

func (rt *Router) uploadFiles(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	form, err := parseUploadForm(w, r, "files")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer form.close()

	var meta domain.NewDocument
	if err := form.decodeJSONField("notarizationService", &meta.NotarizationService); err != nil {
		writeError(w, r, err)
		return
	}
	if err := form.decodeJSONField("notarizationField", &meta.NotarizationField); err != nil {
		writeError(w, r, err)
		return
	}
	if err := form.decodeJSONField("requesterInfo", &meta.RequesterInfo); err != nil {
		writeError(w, r, err)
		return
	}

	uploads := form.files("files")
	doc, err := rt.svc.Notarization.UploadDocuments(r.Context(), caller, meta, uploads)
	if err != nil && (!committed(err) || doc == nil) {
		writeError(w, r, err)
		return
	}
	rt.recorder.RecordUpload("document", uploadSizes(uploads)...)
	rt.recorder.RecordTransition(string(domain.ActionCreate), string(doc.Status))
	if err != nil {
		rt.recorder.RecordNotificationFailure("upload-files")
		writePartialFailure(w, r, doc.ID, string(doc.Status), err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	docs, err := rt.svc.Notarization.History(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

type statusResponse struct {
	DocumentID string                `json:"documentId"`
	Status     domain.DocumentStatus `json:"status"`
	UpdatedAt  *time.Time            `json:"updatedAt,omitempty"`
}

// getStatusByID is the only unauthenticated lookup.
func (rt *Router) getStatusByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Notarization.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	updatedAt := doc.UpdatedAt
	writeJSON(w, http.StatusOK, statusResponse{DocumentID: doc.ID, Status: doc.Status, UpdatedAt: &updatedAt})
}

func (rt *Router) statusHistory(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	rows, err := rt.svc.Notarization.StatusHistory(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (rt *Router) documentsByRole(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	docs, err := rt.svc.Notarization.DocumentsByRole(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(docs))
}

type forwardStatusRequest struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback"`
}

func (rt *Router) forwardDocumentStatus(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req forwardStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action, ok := domain.ParseAction(req.Action)
	if !ok {
		writeError(w, r, domain.Errorf(domain.ErrInvalidInput, "forward status", "unknown action %q", req.Action))
		return
	}

	doc, err := rt.svc.Notarization.ForwardStatus(r.Context(), caller, r.PathValue("id"), action, strings.TrimSpace(req.Feedback))
	if err != nil && (!committed(err) || doc == nil) {
		writeError(w, r, err)
		return
	}
	rt.recorder.RecordTransition(string(action), string(doc.Status))
	if err != nil {
		rt.recorder.RecordNotificationFailure("forwardDocumentStatus")
		writePartialFailure(w, r, doc.ID, string(doc.Status), err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{DocumentID: doc.ID, Status: doc.Status})
}

func (rt *Router) allNotarization(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	page, _ := strconv.Atoi(q.Get("page"))
	query, err := domain.ParseDocumentQuery(q.Get("sortBy"), limit, page, q.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := rt.svc.Notarization.ListAll(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) approveHistory(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	if r.URL.Query().Get("format") == "xlsx" {
		report, err := rt.svc.Notarization.ExportApproveHistory(r.Context(), caller)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", report.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(report.Data)
		return
	}

	rows, err := rt.svc.Notarization.ApproveHistory(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

type approvalResponse struct {
	*domain.SignatureApproval
	FullyApproved bool `json:"fullyApproved"`
}

// approveSignature serves the four approve-signature routes; subject and party
// come from the route, the amount and optional image from the multipart body.
func (rt *Router) approveSignature(kind domain.SubjectKind, party domain.ApprovalParty) identityHandler {
	endpoint := fmt.Sprintf("approve-%s-%s", kind, party)
	return func(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
		var (
			amount *float64
			image  *domain.Upload
		)
		if isMultipart(r) {
			form, err := parseUploadForm(w, r, "signatureImage")
			if err != nil {
				writeError(w, r, err)
				return
			}
			defer form.close()

			if raw := form.value("amount"); raw != "" {
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil || v < 0 {
					writeError(w, r, domain.Errorf(domain.ErrInvalidInput, endpoint, "amount must be a non-negative number"))
					return
				}
				amount = &v
			}
			if files := form.files("signatureImage"); len(files) > 0 {
				image = &files[0]
			}
		}

		subject := domain.ApprovalSubject{Kind: kind, ID: r.PathValue("id")}
		approve := rt.svc.Signatures.ApproveByUser
		if party == domain.PartySecretary {
			approve = rt.svc.Signatures.ApproveBySecretary
		}
		approval, err := approve(r.Context(), caller, subject, amount, image)
		if err != nil && !committed(err) {
			writeError(w, r, err)
			return
		}
		complete := approval.FullyApproved()
		rt.recorder.RecordApproval(string(kind), string(party), complete)
		if image != nil {
			rt.recorder.RecordUpload("signature", image.Size())
		}
		if err != nil {
			rt.recorder.RecordNotificationFailure(endpoint)
			writePartialFailure(w, r, subject.ID, approvalState(complete), err)
			return
		}
		writeJSON(w, http.StatusOK, approvalResponse{SignatureApproval: approval, FullyApproved: complete})
	}
}

func approvalState(complete bool) string {
	if complete {
		return "approved"
	}
	return "pendingApproval"
}

func uploadSizes(uploads []domain.Upload) []int64 {
	sizes := make([]int64, 0, len(uploads))
	for _, u := range uploads {
		sizes = append(sizes, u.Size())
	}
	return sizes
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
