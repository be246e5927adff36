// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAudit/services/audit/handlers"
	"github.com/AleutianAI/AleutianAudit/services/audit/pipeline"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
)

// SetupRoutes registers all audit service endpoints on the router.
func SetupRoutes(router *gin.Engine, audits *store.AuditStore, catalogs *store.CatalogStore, orch *pipeline.Orchestrator) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/audits", handlers.SubmitAudit(audits, catalogs, orch))
		v1.GET("/frameworks", handlers.ListFrameworks(catalogs))

		audit := v1.Group("/audits/:id")
		{
			audit.GET("/status", handlers.GetAuditStatus(audits))
			audit.GET("/report", handlers.GetAuditReport(audits))
			audit.GET("/snapshot", handlers.GetAuditSnapshot(audits, catalogs))
			audit.GET("/snapshot/verify", handlers.VerifySnapshot(audits))
		}
	}
}
