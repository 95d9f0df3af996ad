package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/minios-linux/modloc/syncer"
)

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and trigger server",
		Long: `Serve GitHub App webhooks and the manual trigger endpoints.

Routes:
  POST /webhook            GitHub App events (signature checked)
  GET  /triggerUpdate      ?repo=&subpath=&secret=  pull translations
  GET  /importRepository   ?repo=&subpath=&secret=  import into Crowdin
  GET  /importEnglish      ?repo=&subpath=&secret=  overwrite English files
  GET  /version`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.file.Listen
			}

			srv := &http.Server{
				Addr:              listen,
				Handler:           newRouter(a.syncer, a.env.GitHubWebhooksSecret, a.env.WebserverSecret),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			logInfo("Listening on %s", listen)

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logInfo("Shutting down, waiting for running tasks")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.syncer.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from modloc.yaml)")

	return cmd
}

const (
	triggerInterval = time.Second
	triggerBurst    = 5
)

// newRouter mounts the webhook and trigger routes. Trigger routes require
// the webserver secret as a query parameter and share one rate limiter.
func newRouter(s *syncer.Syncer, webhookSecret, webserverSecret string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/webhook", webhookHandler(s, webhookSecret)).Methods(http.MethodPost)

	guarded := r.NewRoute().Subrouter()
	guarded.Use(requireSecret(webserverSecret))
	guarded.Use(limitRate(rate.NewLimiter(rate.Every(triggerInterval), triggerBurst)))
	guarded.HandleFunc("/triggerUpdate", triggerHandler(s)).Methods(http.MethodGet)
	guarded.HandleFunc("/importRepository", importHandler(s, syncer.ImportRepository)).Methods(http.MethodGet)
	guarded.HandleFunc("/importEnglish", importHandler(s, syncer.ImportEnglishOnly)).Methods(http.MethodGet)
	return r
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<p>Factorio mods localization</p>")
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, version)
}

// requireSecret rejects requests whose secret parameter does not match.
// An empty secret rejects everything.
func requireSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "Missing secret", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitRate answers 429 once the limiter runs out of tokens.
func limitRate(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Too many requests, try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func webhookHandler(s *syncer.Syncer, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := gh.ValidatePayload(r, []byte(secret))
		if err != nil {
			logWarning("Rejected webhook: %v", err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := s.HandleWebhook(r.Context(), gh.WebHookType(r), payload); err != nil {
			logWarning("Rejected webhook: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func triggerHandler(s *syncer.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res, err := s.Trigger(r.Context(), q.Get("repo"), q.Get("subpath"))
		writeResult(w, res, err)
	}
}

func importHandler(s *syncer.Syncer, kind syncer.ImportKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		repo := q.Get("repo")
		if repo == "" {
			http.Error(w, "Missing `repo` query parameter", http.StatusBadRequest)
			return
		}
		res, err := s.ManualImport(r.Context(), repo, q.Get("subpath"), kind)
		writeResult(w, res, err)
	}
}

func writeResult(w http.ResponseWriter, res syncer.TriggerResult, err error) {
	if err != nil {
		logError("%v", err)
		http.Error(w, "Internal error, see logs", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	switch res {
	case syncer.Triggered:
		status = http.StatusAccepted
	case syncer.NoInstallation, syncer.NoMods, syncer.NoMatchingDirectory:
		status = http.StatusNotFound
	case syncer.Busy:
		status = http.StatusConflict
	}
	w.WriteHeader(status)
	fmt.Fprint(w, res)
}
