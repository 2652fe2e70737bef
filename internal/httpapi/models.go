package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"aiportal.dev/internal/audit"
	"aiportal.dev/internal/sktai"
)

func (a *API) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Models == nil {
		disabled(w, "models")
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
	res, err := a.svc.Models.ListModels(r.Context(), sktai.ModelQuery{
		Page:    page,
		Size:    size,
		Keyword: r.URL.Query().Get("keyword"),
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", res)
}

func (a *API) handleModelImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.svc.Models == nil {
		disabled(w, "models")
		return
	}
	var req sktai.ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	job, err := a.svc.Models.ImportModel(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "models.import", map[string]any{
		"job_id": job.ID,
		"name":   req.Name,
		"source": string(req.Source),
		"uri":    req.URI,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/models/import/%s", job.ID))
	writeEnvelope(w, http.StatusAccepted, "import started", job)
}

func (a *API) handleImportJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Models == nil {
		disabled(w, "models")
		return
	}
	if rest, ok := strings.CutSuffix(r.URL.Path, "/events"); ok {
		a.streamImportJob(w, r, strings.TrimPrefix(rest, "/v1/models/import/"))
		return
	}
	id := pathID(r, "/v1/models/import/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "client-error", "resource not found")
		return
	}
	job, err := a.svc.Models.GetImportJob(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", job)
}
