package httpapi

import (
	"fmt"
	"net/http"

	"aiportal.dev/internal/approval"
	"aiportal.dev/internal/audit"
	"aiportal.dev/internal/auth"
)

func (a *API) handleApprovals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.guard(auth.PermApprovalsRead, a.listApprovals)(w, r)
	case http.MethodPost:
		a.guard(auth.PermApprovalsSubmit, a.submitApproval)(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listApprovals(w http.ResponseWriter, r *http.Request) {
	if a.svc.Approvals == nil {
		disabled(w, "approvals")
		return
	}
	page, err := intParam(r, "page")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	size, err := intParam(r, "size")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := a.svc.Approvals.List(r.Context(), approval.ListQuery{
		Page:   page,
		Size:   size,
		Status: approval.Status(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", res)
}

func (a *API) submitApproval(w http.ResponseWriter, r *http.Request) {
	if a.svc.Approvals == nil {
		disabled(w, "approvals")
		return
	}
	var req approval.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.RequesterID == "" {
		if uid, ok := auth.UserIDFromContext(r.Context()); ok {
			req.RequesterID = uid
		}
	}
	created, err := a.svc.Approvals.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "approvals.submit", map[string]any{
		"approval_id": created.ID,
		"type":        req.Type,
		"approvers":   len(req.Approvers),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/approvals/%s", created.ID))
	writeEnvelope(w, http.StatusCreated, "approval submitted", created)
}

func (a *API) handleApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Approvals == nil {
		disabled(w, "approvals")
		return
	}
	id := pathID(r, "/v1/approvals/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "client-error", "resource not found")
		return
	}
	got, err := a.svc.Approvals.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", got)
}
