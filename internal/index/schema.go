package index

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed search_response.schema.json
var searchResponseSchemaJSON string

//go:embed rerank_response.schema.json
var rerankResponseSchemaJSON string

type searchResponse struct {
	Hits      []ChunkHit `json:"hits"`
	ElapsedMS *float64   `json:"elapsed_ms"`
}

type rerankResponse struct {
	Scores    []float64 `json:"scores"`
	ElapsedMS *float64  `json:"elapsed_ms"`
}

var (
	compileOnce        sync.Once
	searchSchema       *jsonschema.Schema
	rerankSchema       *jsonschema.Schema
	compiledSchemasErr error
)

func validateSearchResponse(payload []byte) (*searchResponse, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode search response JSON: %w", err)
	}

	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if err := searchSchema.Validate(value); err != nil {
		return nil, fmt.Errorf("search response schema validation failed: %w", err)
	}

	var resp searchResponse
	if err := remarshal(value, &resp); err != nil {
		return nil, err
	}
	for i, hit := range resp.Hits {
		if hit.TextEnd < hit.TextStart {
			return nil, fmt.Errorf("hit %d has inverted span [%d,%d)", i, hit.TextStart, hit.TextEnd)
		}
	}
	return &resp, nil
}

func validateRerankResponse(payload []byte, wantScores int) (*rerankResponse, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode rerank response JSON: %w", err)
	}

	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if err := rerankSchema.Validate(value); err != nil {
		return nil, fmt.Errorf("rerank response schema validation failed: %w", err)
	}

	var resp rerankResponse
	if err := remarshal(value, &resp); err != nil {
		return nil, err
	}
	if len(resp.Scores) != wantScores {
		return nil, fmt.Errorf("rerank score count mismatch: requested=%d returned=%d", wantScores, len(resp.Scores))
	}
	return &resp, nil
}

func loadSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		schemas := []struct {
			name   string
			source string
			target **jsonschema.Schema
		}{
			{name: "search_response.schema.json", source: searchResponseSchemaJSON, target: &searchSchema},
			{name: "rerank_response.schema.json", source: rerankResponseSchemaJSON, target: &rerankSchema},
		}

		for _, entry := range schemas {
			if err := compiler.AddResource(entry.name, strings.NewReader(entry.source)); err != nil {
				compiledSchemasErr = fmt.Errorf("add schema resource %s: %w", entry.name, err)
				return
			}
			schema, err := compiler.Compile(entry.name)
			if err != nil {
				compiledSchemasErr = fmt.Errorf("compile schema %s: %w", entry.name, err)
				return
			}
			*entry.target = schema
		}
	})
	return compiledSchemasErr
}

func decodeStrictJSON(payload []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, err
	}
	return value, nil
}

func ensureEOF(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("trailing content after JSON document")
	}
	return nil
}

func remarshal(value any, target any) error {
	normalized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("normalize response JSON: %w", err)
	}
	if err := json.Unmarshal(normalized, target); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
