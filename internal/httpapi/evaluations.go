package httpapi

import (
	"net/http"

	"aiportal.dev/internal/auth"
	"aiportal.dev/internal/datumo"
)

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Evaluations == nil {
		disabled(w, "evaluations")
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
	q := datumo.TaskQuery{
		Page:     page,
		Size:     size,
		Category: datumo.Category(r.URL.Query().Get("category")),
		Keyword:  r.URL.Query().Get("keyword"),
	}
	token, _ := auth.TokenFromContext(r.Context())
	res, err := a.svc.Evaluations.ListTasks(r.Context(), token, q)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", res)
}

func (a *API) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.svc.Evaluations == nil {
		disabled(w, "evaluations")
		return
	}
	id := pathID(r, "/v1/evaluations/tasks/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "client-error", "resource not found")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	task, err := a.svc.Evaluations.GetTask(r.Context(), token, id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "ok", task)
}

func disabled(w http.ResponseWriter, name string) {
	writeProblem(w, http.StatusServiceUnavailable, "upstream-unavailable", name+" integration is disabled")
}
