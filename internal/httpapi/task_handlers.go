package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskflow.dev/internal/tasks"
)

// taskFilter reads status, assigned_to, page and limit from the query string.
func taskFilter(r *http.Request) (tasks.Filter, error) {
	q := r.URL.Query()
	var f tasks.Filter
	if s := q.Get("status"); s != "" {
		st, err := tasks.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	f.AssigneeID = q.Get("assigned_to")

	var err error
	if f.Page, err = parsePositiveInt(q.Get("page"), 1); err != nil {
		return f, err
	}
	if f.Limit, err = parsePositiveInt(q.Get("limit"), tasks.DefaultLimit); err != nil {
		return f, err
	}
	return f, nil
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	f, err := taskFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	page, err := a.opts.Tasks.List(r.Context(), identity(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if page.Tasks == nil {
		page.Tasks = []*tasks.Task{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.opts.Tasks.Create(r.Context(), identity(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": t})
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.opts.Tasks.Get(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.opts.Tasks.Update(r.Context(), identity(r), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Tasks.Delete(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeMessage(w, "Task deleted successfully")
}

func (a *API) taskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.opts.Tasks.Stats(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (a *API) taskUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.opts.Tasks.Users(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views(users)})
}

func (a *API) bulkTasks(w http.ResponseWriter, r *http.Request) {
	rows, err := readUpload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.opts.Tasks.Import(r.Context(), identity(r), rows)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Bulk import processed",
		"results": res,
	})
}
