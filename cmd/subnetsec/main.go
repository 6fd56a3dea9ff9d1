package main

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migFS embed.FS

func mustEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func sqliteDSN(raw string) string {
	if strings.Contains(raw, "_pragma=foreign_keys") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "_pragma=foreign_keys(1)"
}

func main() {
	dbPath := mustEnv("DB_PATH", "./subnetsec.sqlite")
	listen := mustEnv("LISTEN_ADDR", "0.0.0.0:8080")
	environmentID := mustEnv("ENVIRONMENT_ID", "default")

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		log.Fatal(err)
	}

	ipam := newIPAMStore(db)
	sessions := newSessionStore()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	r.GET("/api/providers", func(c *gin.Context) {
		c.JSON(200, gin.H{"providers": providerNames()})
	})

	r.GET("/api/cidr", func(c *gin.Context) {
		raw := strings.TrimSpace(c.Query("cidr"))
		if !isValidCIDR(raw) {
			c.JSON(200, gin.H{"cidr": raw, "valid": false})
			return
		}
		c.JSON(200, gin.H{"cidr": raw, "valid": true, "info": computeCIDR(raw)})
	})

	// Stateless join/split: documents in, documents out, nothing retained.
	r.POST("/api/reconcile/join", func(c *gin.Context) {
		var req reconcileRequest
		if err := decodeBody(c, &req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		provider := parseProvider(req.Provider)
		views := joinDocuments(req.Network, req.Security, provider, ipam.SpacesAvailable(environmentID))
		c.JSON(200, gin.H{
			"provider":       string(provider),
			"known_provider": knownProvider(provider),
			"views":          views,
		})
	})

	r.POST("/api/reconcile/split", func(c *gin.Context) {
		var req splitRequest
		if err := decodeBody(c, &req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		network, security := splitViews(req.Views, parseProvider(req.Provider))
		respondDocuments(c, c.Query("format"), network, security)
	})

	// Address spaces
	r.GET("/api/spaces", func(c *gin.Context) {
		spaces, err := ipam.ListSpaces(environmentID)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"spaces": spaces})
	})
	r.POST("/api/spaces", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
			CIDR string `json:"cidr"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		space, err := ipam.CreateSpace(environmentID, req.Name, req.CIDR)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		writeAudit(db, c, auditRecord{
			Action:      "create",
			EntityType:  "address_space",
			EntityID:    space.ID,
			EntityLabel: space.Name,
			Detail:      space,
		})
		c.JSON(201, space)
	})
	r.DELETE("/api/spaces/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := ipam.DeleteSpace(id); err != nil {
			status := 500
			if err == errSpaceNotFound {
				status = 404
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		writeAudit(db, c, auditRecord{Action: "delete", EntityType: "address_space", EntityID: id})
		c.Status(204)
	})

	// Edit sessions
	r.POST("/api/sessions", func(c *gin.Context) {
		var req reconcileRequest
		if err := decodeBody(c, &req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		provider := parseProvider(req.Provider)
		session := sessions.Create(provider, req.Network, req.Security, ipam.SpacesAvailable(environmentID))
		views, _, _ := sessions.Views(session.ID)
		c.JSON(201, gin.H{
			"id":       session.ID,
			"provider": string(provider),
			"views":    views,
		})
	})
	r.GET("/api/sessions/:id", func(c *gin.Context) {
		views, provider, err := sessions.Views(c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"id": c.Param("id"), "provider": string(provider), "views": views})
	})
	r.DELETE("/api/sessions/:id", func(c *gin.Context) {
		if !sessions.Delete(c.Param("id")) {
			c.JSON(404, gin.H{"error": errSessionNotFound.Error()})
			return
		}
		c.Status(204)
	})

	r.POST("/api/sessions/:id/subnets", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		spacesAvailable := ipam.SpacesAvailable(environmentID)
		views, err := sessions.Update(c.Param("id"), func(views []SubnetView) ([]SubnetView, error) {
			return addSubnetView(views, req.Name, spacesAvailable)
		})
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"views": views})
	})

	r.DELETE("/api/sessions/:id/subnets/:name", func(c *gin.Context) {
		var allocationID string
		views, err := sessions.Update(c.Param("id"), func(views []SubnetView) ([]SubnetView, error) {
			next, id, err := removeSubnetView(views, c.Param("name"))
			allocationID = id
			return next, err
		})
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		// Local removal is authoritative; a failed release leaves an orphaned
		// allocation server-side, reported but not fatal.
		var releaseWarning string
		if allocationID != "" {
			if err := ipam.Release(c.Request.Context(), allocationID); err != nil {
				releaseWarning = err.Error()
			} else {
				writeAudit(db, c, auditRecord{Action: "release", EntityType: "allocation", EntityID: allocationID})
			}
		}
		payload := gin.H{"views": views}
		if releaseWarning != "" {
			payload["release_warning"] = releaseWarning
		}
		c.JSON(200, payload)
	})

	r.PATCH("/api/sessions/:id/subnets/:name", func(c *gin.Context) {
		var patch subnetPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		spacesAvailable := ipam.SpacesAvailable(environmentID)
		views, err := sessions.Update(c.Param("id"), func(views []SubnetView) ([]SubnetView, error) {
			return patchSubnetView(views, c.Param("name"), patch, spacesAvailable)
		})
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		// A malformed CIDR is flagged inline and does not block the edit.
		payload := gin.H{"views": views}
		if patch.CIDR != nil && *patch.CIDR != "" {
			payload["cidr_valid"] = isValidCIDR(*patch.CIDR)
		}
		c.JSON(200, payload)
	})

	r.POST("/api/sessions/:id/subnets/:name/rules", func(c *gin.Context) {
		var req struct {
			Direction string         `json:"direction"`
			Rule      map[string]any `json:"rule"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		views, err := sessions.Update(c.Param("id"), func(views []SubnetView) ([]SubnetView, error) {
			return addRuleToView(views, c.Param("name"), req.Direction, RuleRecord(req.Rule))
		})
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"views": views})
	})

	r.DELETE("/api/sessions/:id/subnets/:name/rules/:direction/:index", func(c *gin.Context) {
		ruleIndex, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid rule index"})
			return
		}
		views, err := sessions.Update(c.Param("id"), func(views []SubnetView) ([]SubnetView, error) {
			return removeRuleFromView(views, c.Param("name"), c.Param("direction"), ruleIndex)
		})
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"views": views})
	})

	r.POST("/api/sessions/:id/subnets/:name/allocate", func(c *gin.Context) {
		var req struct {
			SpaceID      string `json:"space_id"`
			PrefixLength int    `json:"prefix_length"`
			Label        string `json:"label"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		sessionID := c.Param("id")
		subnet := c.Param("name")
		token, err := sessions.BeginAllocation(sessionID, subnet)
		if err != nil {
			c.JSON(sessionErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		label := strings.TrimSpace(req.Label)
		if label == "" {
			label = subnet
		}
		alloc, err := ipam.Allocate(c.Request.Context(), AllocateRequest{
			EnvironmentID:  environmentID,
			AddressSpaceID: req.SpaceID,
			PrefixLength:   req.PrefixLength,
			Label:          label,
		})
		if err != nil {
			// Allocation failure keeps the subnet in IPAM mode so the
			// operator can retry.
			c.JSON(502, gin.H{"error": err.Error()})
			return
		}
		view, err := sessions.CompleteAllocation(sessionID, subnet, token, alloc)
		if err != nil {
			// A superseded or orphaned response releases its block instead of
			// overwriting newer state.
			if releaseErr := ipam.Release(context.Background(), alloc.AllocationID); releaseErr != nil {
				log.Printf("release of superseded allocation %s failed: %v", alloc.AllocationID, releaseErr)
			}
			c.JSON(409, gin.H{"error": err.Error()})
			return
		}
		writeAudit(db, c, auditRecord{
			Action:      "allocate",
			EntityType:  "allocation",
			EntityID:    alloc.AllocationID,
			EntityLabel: subnet,
			Detail:      alloc,
		})
		c.JSON(200, gin.H{"view": view, "allocation": alloc})
	})

	r.POST("/api/sessions/:id/split", func(c *gin.Context) {
		views, provider, err := sessions.Views(c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": err.Error()})
			return
		}
		network, security := splitViews(views, provider)
		respondDocuments(c, c.Query("format"), network, security)
	})

	r.GET("/api/sessions/:id/export", func(c *gin.Context) {
		views, provider, err := sessions.Views(c.Param("id"))
		if err != nil {
			c.JSON(404, gin.H{"error": err.Error()})
			return
		}
		if err := exportViews(c, provider, views); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
		}
	})

	r.GET("/api/audit", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		entries, err := listAuditEntries(db, limit)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		payload := make([]gin.H, 0, len(entries))
		for _, entry := range entries {
			payload = append(payload, auditEntryPayload(entry))
		}
		c.JSON(200, gin.H{"entries": payload})
	})

	log.Printf("subnetsec listening on %s (environment %s)", listen, environmentID)
	if err := r.Run(listen); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func sessionErrStatus(err error) int {
	switch err {
	case errSessionNotFound, errSubnetNotFound:
		return 404
	default:
		return 400
	}
}
