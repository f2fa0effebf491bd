package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"taskline/internal/domain"
	"taskline/internal/livequery"
	"taskline/internal/repo"
)

// requestIdentity pins a live view to the owner authenticated on the request.
type requestIdentity struct {
	owner string
}

func (i requestIdentity) CurrentOwnerID() string { return i.owner }

func (i requestIdentity) OnAuthChange(func(string)) func() { return func() {} }

// registerWatch streams the owner's full task list as server-sent events.
// Every mutation produces one event carrying the complete list.
func registerWatch(router chi.Router, basePath string, r *repo.Repo) {
	router.Get(path.Join(basePath, "tasks/watch"), func(w http.ResponseWriter, req *http.Request) {
		ownerID, authErr := ownerFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}

		updates := make(chan []domain.Task, 1)
		view := livequery.New(r, requestIdentity{owner: ownerID})
		defer view.Close()
		unsub := view.OnChange(func(tasks []domain.Task) {
			// keep only the latest snapshot if the client is slow
			for {
				select {
				case updates <- tasks:
					return
				default:
					select {
					case <-updates:
					default:
					}
				}
			}
		})
		defer unsub()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		for {
			select {
			case <-req.Context().Done():
				return
			case tasks := <-updates:
				data, err := json.Marshal(mapTasks(tasks))
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "event: tasks\ndata: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}
