package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Sessions, s.deps.Marking, s.deps.Recognizer, s.logger)
	recognitionHandler := handlers.NewRecognitionHandler(s.deps.Recognizer, s.logger)
	statsHandler := handlers.NewStatsHandler(s.deps.Aggregator, s.logger)
	galleryHandler := handlers.NewGalleryHandler(s.deps.Trainer, s.deps.Galleries, s.jobManager, s.deps.Metrics, s.logger)
	registerHandler := handlers.NewRegisterHandler(s.deps.Registrar, s.logger)
	healthHandler := handlers.NewHealthHandler(s.deps.DB)

	// Health and metrics (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Check)
	s.router.Handle("/metrics", s.deps.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/start-session", attendanceHandler.StartSession)
			r.Post("/end-session", attendanceHandler.EndSession)
			r.Get("/active-session", attendanceHandler.ActiveSession)
			r.Post("/mark-present", attendanceHandler.MarkPresent)
			r.Post("/mark-absent", attendanceHandler.MarkAbsent)
			r.Post("/recognize-and-mark", attendanceHandler.RecognizeAndMark)
			r.Post("/recognize-multiple-and-mark", attendanceHandler.RecognizeMultipleAndMark)
			r.Get("/session/{sessionId}", attendanceHandler.SessionRecords)

			r.Get("/student/{identity}", statsHandler.StudentHistory)
			r.Get("/subject-stats", statsHandler.SubjectStats)
			r.Get("/daily-report", statsHandler.DailyReport)
			r.Get("/low-attendance", statsHandler.LowAttendance)
			r.Post("/update-summary", statsHandler.UpdateSummary)
		})

		r.Post("/recognize", recognitionHandler.Recognize)
		r.Post("/recognize-multiple", recognitionHandler.RecognizeMultiple)
		r.Post("/verify", recognitionHandler.Verify)

		r.Route("/galleries", func(r chi.Router) {
			r.Post("/build", galleryHandler.Build)
			r.Get("/jobs/{jobId}", galleryHandler.JobStatus)
			r.Get("/jobs/{jobId}/events", galleryHandler.Events)
			r.Delete("/jobs/{jobId}", galleryHandler.Cancel)
			r.Get("/{scope}", galleryHandler.Get)
		})

		r.Route("/register", func(r chi.Router) {
			r.Post("/student", registerHandler.Student)
			r.Post("/teacher", registerHandler.Teacher)
			r.Post("/guest", registerHandler.Guest)
		})
	})
}
