package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/normalize"
	"github.com/bakerline/qtour/internal/tour"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tour operations over HTTP for terminal frontends",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initTour(ctx, serveTourID)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			data, err := env.Tour.MarshalStatuses()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
		})

		r.Get("/categories/{category}/next", func(w http.ResponseWriter, req *http.Request) {
			category := model.Category(chi.URLParam(req, "category"))
			if !category.Valid() {
				writeError(w, http.StatusBadRequest, tour.ErrUnknownCategory)
				return
			}
			if err := env.Tour.Refresh(req.Context(), category); err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"next_cycle": env.Tour.CurrentCycle(category)})
		})

		r.Post("/categories/{category}/cycles/{cycle}/start", func(w http.ResponseWriter, req *http.Request) {
			category := model.Category(chi.URLParam(req, "category"))
			cycle := urlInt(req, "cycle")

			var cycleCtx model.CycleContext
			if err := json.NewDecoder(req.Body).Decode(&cycleCtx); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := env.Tour.StartCycle(req.Context(), category, cycle, cycleCtx); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"category": category, "cycle": cycle, "state": model.CycleStarted})
		})

		r.Post("/categories/{category}/cycles/{cycle}/save", func(w http.ResponseWriter, req *http.Request) {
			category := model.Category(chi.URLParam(req, "category"))
			cycle := urlInt(req, "cycle")

			var body struct {
				Offline bool               `json:"offline"`
				Context model.CycleContext `json:"context"`
				Items   []struct {
					ItemKey           string `json:"item_key"`
					Area              string `json:"area,omitempty"`
					ItemIndex         int    `json:"item_index,omitempty"`
					Criteria          string `json:"criteria"`
					DefectCategory    string `json:"defect_category,omitempty"`
					Remarks           string `json:"remarks,omitempty"`
					DefectDescription string `json:"defect_description,omitempty"`
				} `json:"items"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}

			form := normalize.FormState{Context: body.Context}
			for _, item := range body.Items {
				form.Items = append(form.Items, normalize.FormItem{
					ItemKey:           item.ItemKey,
					Area:              item.Area,
					ItemIndex:         item.ItemIndex,
					Criteria:          item.Criteria,
					DefectCategory:    item.DefectCategory,
					Remarks:           item.Remarks,
					DefectDescription: item.DefectDescription,
				})
			}

			if body.Offline {
				sub, err := env.Tour.QueueCycle(req.Context(), category, cycle, form)
				if err != nil {
					writeError(w, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]string{"queued": sub.ID})
				return
			}

			if err := env.Tour.SaveCycle(req.Context(), category, cycle, form); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"category": category, "cycle": cycle, "state": model.CycleCompleted})
		})

		r.Post("/sync", func(w http.ResponseWriter, req *http.Request) {
			results, err := env.Tour.SyncAll(req.Context())
			if err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			writeJSON(w, http.StatusOK, results)
		})

		r.Get("/score", func(w http.ResponseWriter, req *http.Request) {
			summary, err := env.Tour.ScoreSummary(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, summary)
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("serving tour operations", zap.String("addr", srv.Addr), zap.String("tour_id", serveTourID))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}

func urlInt(req *http.Request, key string) int {
	var n int
	_, _ = fmt.Sscanf(chi.URLParam(req, key), "%d", &n)
	return n
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tour.ErrEmptySave),
		errors.Is(err, tour.ErrMissingContext),
		errors.Is(err, tour.ErrUnknownCategory),
		errors.Is(err, tour.ErrCycleNotStarted):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var serveTourID string

func init() {
	serveCmd.Flags().StringVar(&serveTourID, "tour", "", "tour identifier")
	_ = serveCmd.MarkFlagRequired("tour")

	rootCmd.AddCommand(serveCmd)
}
