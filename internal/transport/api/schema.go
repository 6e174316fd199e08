package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kailas-cloud/curator/internal/domain"
)

const itemSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "integer", "minimum": 1},
		"title": {"type": ["string", "null"]},
		"description": {"type": ["string", "null"]},
		"resource_type": {"type": ["string", "null"]},
		"preview_url": {"type": ["string", "null"]}
	}
}`

const taskSchema = `{
	"type": "object",
	"required": ["id", "status"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"kind": {"type": "string"},
		"owner": {"type": ["string", "null"]},
		"status": {"enum": ["queued", "processing", "success", "failure"]},
		"result": {}
	}
}`

var (
	searchResponseSchema = mustSchema(`{
		"type": "object",
		"required": ["count", "results", "facet_counts"],
		"properties": {
			"count": {"type": "integer", "minimum": 0},
			"results": {"type": "array", "items": ` + itemSchema + `},
			"facet_counts": {
				"type": "object",
				"additionalProperties": {
					"type": "object",
					"required": ["facet", "values"],
					"properties": {
						"facet": {
							"type": "object",
							"required": ["key"],
							"properties": {
								"key": {"type": "string", "minLength": 1},
								"label": {"type": ["string", "null"]},
								"missing_count": {"type": ["integer", "null"], "minimum": 0}
							}
						},
						"values": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["key", "count"],
								"properties": {
									"key": {"type": "string"},
									"label": {"type": ["string", "null"]},
									"count": {"type": "integer", "minimum": 0}
								}
							}
						}
					}
				}
			},
			"selected_facets": {
				"type": "object",
				"additionalProperties": {"type": "object", "additionalProperties": {"type": "boolean"}}
			},
			"selected_missing_facets": {
				"type": "object",
				"additionalProperties": {"type": "boolean"}
			}
		}
	}`)

	itemListSchema = mustSchema(`{
		"type": "object",
		"required": ["results"],
		"properties": {"results": {"type": "array", "items": ` + itemSchema + `}}
	}`)

	idListSchema = mustSchema(`{
		"type": "object",
		"required": ["ids"],
		"properties": {"ids": {"type": "array", "items": {"type": "integer", "minimum": 1}}}
	}`)

	taskResponseSchema = mustSchema(taskSchema)

	taskListSchema = mustSchema(`{
		"type": "object",
		"required": ["results"],
		"properties": {"results": {"type": "array", "items": ` + taskSchema + `}}
	}`)

	submitResponseSchema = mustSchema(`{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile response schema: %v", err))
	}
	return s
}

func validate(schema *gojsonschema.Schema, body []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	if !res.Valid() {
		errs := make([]string, len(res.Errors()))
		for i, desc := range res.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, strings.Join(errs, "; "))
	}
	return nil
}
