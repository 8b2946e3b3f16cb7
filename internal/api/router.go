// Package api wires the HTTP routes of the pipeline server.
//
// @title ML Pipeline API
// @version 1.0
// @description Start training pipeline runs, inspect their stages, errors and artifacts, and score rows with trained models.
// @BasePath /api/v1
package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-ml-pipeline/internal/api/docs"
	"go-ml-pipeline/internal/api/handler"
	"go-ml-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/healthz", h.Healthz)
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/*/stages", h.GetRunStages)
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/*/artifacts", h.GetRunArtifacts)
	r.GET("/api/v1/runs/*", h.GetRun)
	r.POST("/api/v1/pipelines/*/predict", h.Predict)

	swagger := httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))
	r.GET("/swagger/*", swagger.ServeHTTP)
}
