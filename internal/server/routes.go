// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"net/http"

	"codeberg.org/smsresearch/studyportal/internal/assets"
	"codeberg.org/smsresearch/studyportal/internal/auth"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/handlers"
	"github.com/labstack/echo/v4"
)

func setupRoutes(e *echo.Echo, h *handlers.Handlers, cfg *config.Config) {
	// Static files
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static", assets.FileServer())))

	e.GET("/health", h.Health)

	// Participant pages
	e.GET("/", h.Landing)
	e.POST("/start", h.Start)

	e.GET("/survey", h.Survey)
	survey := e.Group("/survey")
	survey.POST("/answers", h.SurveyAnswers)
	survey.POST("/contact", h.SurveyContact)
	survey.POST("/back", h.SurveyBack)
	survey.POST("/edit", h.SurveyEdit)
	survey.POST("/confirm", h.SurveyConfirm)
	survey.POST("/dialog/resend", h.SurveyResendLink)
	survey.POST("/dialog/restart", h.SurveyRestart)
	survey.POST("/dialog/dismiss", h.SurveyDismiss)

	limit := codeRateLimiter(cfg.RateLimit)
	e.GET("/verify", h.Verify)
	verify := e.Group("/verify")
	verify.GET("/events", h.Events)
	verify.POST("/send", h.VerifySend, limit)
	verify.POST("/resend", h.VerifyResend, limit)
	verify.POST("/code", h.VerifyCode)
	verify.POST("/cancel", h.VerifyCancel)
	verify.POST("/change-number", h.VerifyChangeNumber)
	verify.POST("/help", h.VerifyHelp)

	// Admin login - public
	e.GET(auth.LoginPath, h.AdminLogin)
	e.POST(auth.LoginPath, h.AdminLoginSubmit)
	e.POST("/admin/logout", h.AdminLogout)

	// Admin console - token required
	guard := auth.RequireAdmin()
	e.GET("/admin-dashboard", h.Dashboard, guard)
	e.GET("/admin-ops", h.Links, guard)
	e.GET("/admin-gift-cards", h.GiftCards, guard)
	e.GET("/admin-enrollment", h.Enrollment, guard)

	admin := e.Group("/admin", guard)
	admin.POST("/invitations/bulk", h.BulkInvitations)
	admin.POST("/invitations/send-with-link", h.SendWithLink)
	admin.POST("/invitations/:id/remind", h.RemindInvitation)
	admin.POST("/invitations/:id/complete", h.CompleteInvitation)
	admin.POST("/invitations/:id/uncomplete", h.UncompleteInvitation)
	admin.POST("/invitations/:id/update", h.UpdateParticipant)
	admin.POST("/invitations/:id/delete", h.DeleteParticipant)

	admin.POST("/links/upload", h.UploadLinks)
	admin.POST("/links/bulk-delete", h.BulkDeleteLinks)
	admin.POST("/links/:id/update", h.UpdateLink)
	admin.POST("/links/:id/delete", h.DeleteLink)

	admin.POST("/gift-cards/pool", h.AddGiftCard)
	admin.POST("/gift-cards/pool/upload", h.UploadGiftCards)
	admin.POST("/gift-cards/pool/:id/delete", h.DeletePoolCard)
	admin.POST("/gift-cards/send", h.SendGiftCards)
	admin.POST("/gift-cards/:id/notes", h.SaveGiftCardNotes)
	admin.POST("/gift-cards/:id/resend", h.ResendGiftCard)
	admin.POST("/gift-cards/:id/delete", h.DeleteGiftCard)

	admin.POST("/enrollment", h.UpdateEnrollment)
}
