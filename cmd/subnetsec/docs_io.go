// Copyright (c) 2025 Berik Ashimov

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// reconcileRequest is the wire shape for join, split and session creation.
// The two documents arrive exactly as the provider tooling emits them.
type reconcileRequest struct {
	Provider string           `json:"provider" yaml:"provider"`
	Network  NetworkDocument  `json:"network" yaml:"network"`
	Security SecurityDocument `json:"security" yaml:"security"`
}

type splitRequest struct {
	Provider string       `json:"provider" yaml:"provider"`
	Views    []SubnetView `json:"views" yaml:"views"`
}

type documentPair struct {
	Network  NetworkDocument  `json:"network" yaml:"network"`
	Security SecurityDocument `json:"security" yaml:"security"`
}

func requestIsYAML(c *gin.Context) bool {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	return strings.Contains(contentType, "yaml") || strings.Contains(contentType, "yml")
}

// decodeBody reads the request as JSON or, when the Content-Type says so,
// YAML. YAML documents are normalized through a JSON round trip so the
// schemaless records end up as map[string]any either way.
func decodeBody(c *gin.Context, out any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("empty request body")
	}
	if requestIsYAML(c) {
		var raw any
		if err := yaml.Unmarshal(body, &raw); err != nil {
			return err
		}
		body, err = json.Marshal(normalizeYAML(raw))
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(body, out)
}

// normalizeYAML rewrites yaml.v3's nested values into JSON-compatible form.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, normalizeYAML(item))
		}
		return out
	default:
		return v
	}
}

func respondDocuments(c *gin.Context, format string, network NetworkDocument, security SecurityDocument) {
	pair := documentPair{Network: network, Security: security}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		c.JSON(200, pair)
	case "yaml", "yml":
		body, err := yaml.Marshal(pair)
		if err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		c.Data(200, "application/yaml", body)
	default:
		c.JSON(400, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
	}
}
