// Copyright (c) 2025 Berik Ashimov

package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

type ExportBundle struct {
	Provider string       `json:"provider" yaml:"provider"`
	Views    []SubnetView `json:"views" yaml:"views"`
}

func exportViews(c *gin.Context, provider Provider, views []SubnetView) error {
	format := strings.ToLower(strings.TrimSpace(c.Query("format")))
	bundle := ExportBundle{Provider: string(provider), Views: views}
	switch format {
	case "", "json":
		c.JSON(http.StatusOK, bundle)
		return nil
	case "yaml", "yml":
		body, err := yaml.Marshal(bundle)
		if err != nil {
			return err
		}
		c.Data(http.StatusOK, "application/yaml", body)
		return nil
	case "csv":
		return exportViewsCSV(c, views)
	case "xlsx":
		return exportViewsXLSX(c, provider, views)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
		return nil
	}
}

func exportViewsCSV(c *gin.Context, views []SubnetView) error {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=subnetsec_views.csv")
	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{
		"name", "cidr", "gateway", "type", "az", "region",
		"service_endpoints", "private_google_access", "security_association",
		"inbound_rules", "outbound_rules",
	}); err != nil {
		return err
	}
	for _, v := range views {
		if err := w.Write([]string{
			v.Name,
			v.CIDR,
			v.Gateway,
			v.Type,
			v.AZ,
			v.Region,
			strings.Join(v.ServiceEndpoints, " "),
			strconv.FormatBool(v.PrivateGoogleAccess),
			v.SecurityAssociation,
			strconv.Itoa(len(v.InboundRules)),
			strconv.Itoa(len(v.OutboundRules)),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportViewsXLSX(c *gin.Context, provider Provider, views []SubnetView) error {
	f := excelize.NewFile()
	subnetSheet := "Subnets"
	f.SetSheetName("Sheet1", subnetSheet)
	writeSheetRows(f, subnetSheet, buildSubnetSheet(views))

	ruleSheet := "Rules"
	f.NewSheet(ruleSheet)
	writeSheetRows(f, ruleSheet, buildRuleSheet(views))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	c.Header("Content-Disposition", "attachment; filename=subnetsec_"+string(provider)+".xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	return nil
}

func buildSubnetSheet(views []SubnetView) [][]interface{} {
	rows := [][]interface{}{{
		"Name", "CIDR", "Gateway", "Type", "AZ", "Region",
		"Service Endpoints", "Private Google Access", "Security Association",
		"Network", "Broadcast", "Mask", "Usable Hosts",
	}}
	for _, v := range views {
		var network, broadcast, mask, hosts string
		if isValidCIDR(v.CIDR) {
			info := computeCIDR(v.CIDR)
			network = info.Network
			broadcast = info.Broadcast
			mask = info.SubnetMask
			hosts = strconv.FormatUint(info.HostCount, 10)
		}
		rows = append(rows, []interface{}{
			v.Name, v.CIDR, v.Gateway, v.Type, v.AZ, v.Region,
			strings.Join(v.ServiceEndpoints, ", "),
			v.PrivateGoogleAccess,
			v.SecurityAssociation,
			network, broadcast, mask, hosts,
		})
	}
	return rows
}

func buildRuleSheet(views []SubnetView) [][]interface{} {
	rows := [][]interface{}{{"Subnet", "Direction", "Rule"}}
	for _, v := range views {
		for _, rule := range v.InboundRules {
			rows = append(rows, []interface{}{v.Name, "inbound", ruleSummary(rule)})
		}
		for _, rule := range v.OutboundRules {
			rows = append(rows, []interface{}{v.Name, "outbound", ruleSummary(rule)})
		}
	}
	return rows
}

func ruleSummary(rule RuleRecord) string {
	body, err := json.Marshal(map[string]any(rule))
	if err != nil {
		return ""
	}
	return string(body)
}

func writeSheetRows(f *excelize.File, sheet string, rows [][]interface{}) {
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}
