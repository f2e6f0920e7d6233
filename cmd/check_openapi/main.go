package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]operation `yaml:"paths"`
	Components struct {
		Schemas   map[string]schema   `yaml:"schemas"`
		Responses map[string]response `yaml:"responses"`
	} `yaml:"components"`
}

type operation struct {
	Summary   string              `yaml:"summary"`
	Responses map[string]response `yaml:"responses"`
}

type response struct {
	Ref         string `yaml:"$ref"`
	Description string `yaml:"description"`
	Content     map[string]struct {
		Schema schema `yaml:"schema"`
	} `yaml:"content"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// requiredPaths is the HTTP surface the server registers. The OpenAPI
// document must keep describing all of it.
var requiredPaths = []string{
	"/healthz",
	"/api/splash",
	"/api/auth/register",
	"/api/auth/login",
	"/api/dashboard",
	"/api/books",
	"/api/search",
	"/api/quotes",
	"/api/trivia/sessions",
	"/api/trivia/sessions/{id}/answers",
	"/api/admin/books",
	"/api/admin/books/{id}",
	"/api/admin/users",
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}

	if err := validatePaths(doc); err != nil {
		exitErr(err)
	}
	if err := validateErrorEnvelope(doc); err != nil {
		exitErr(err)
	}
	if err := validateErrorResponses(doc); err != nil {
		exitErr(err)
	}

	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func validatePaths(doc openAPIDoc) error {
	if len(doc.Paths) == 0 {
		return errors.New("paths missing")
	}
	for _, path := range requiredPaths {
		if _, ok := doc.Paths[path]; !ok {
			return fmt.Errorf("path %q missing from document", path)
		}
	}
	return nil
}

// validateErrorEnvelope pins the error body every handler writes:
// an object with a required string "error" field.
func validateErrorEnvelope(doc openAPIDoc) error {
	if doc.Components.Schemas == nil {
		return errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas["ErrorResponse"]
	if !ok {
		return errors.New(`schema "ErrorResponse" missing`)
	}
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	if !makeSet(s.Required)["error"] {
		return errors.New(`ErrorResponse.required must include "error"`)
	}
	errorProp, ok := s.Properties["error"]
	if !ok || errorProp.Type != "string" {
		return errors.New("ErrorResponse.error must be string")
	}
	return nil
}

// validateErrorResponses checks that every documented 4xx/5xx response
// resolves to the shared error envelope.
func validateErrorResponses(doc openAPIDoc) error {
	for path, operations := range doc.Paths {
		for method, op := range operations {
			for code, resp := range op.Responses {
				status, err := strconv.Atoi(code)
				if err != nil || status < 400 {
					continue
				}
				if err := checkErrorResponse(doc, resp); err != nil {
					return fmt.Errorf("%s %s %s: %w", strings.ToUpper(method), path, code, err)
				}
			}
		}
	}
	return nil
}

func checkErrorResponse(doc openAPIDoc, resp response) error {
	if ref := strings.TrimSpace(resp.Ref); ref != "" {
		name := strings.TrimPrefix(ref, "#/components/responses/")
		resolved, ok := doc.Components.Responses[name]
		if !ok {
			return fmt.Errorf("response ref %q unresolved", ref)
		}
		resp = resolved
	}
	content, ok := resp.Content["application/json"]
	if !ok {
		return errors.New("error response must carry application/json content")
	}
	if ref := strings.TrimSpace(content.Schema.Ref); ref != "#/components/schemas/ErrorResponse" {
		return fmt.Errorf("error response schema must reference ErrorResponse, got %q", ref)
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
