// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "parameters": [
                    {"type": "string", "description": "Pipeline name", "name": "name", "in": "query"},
                    {"type": "integer", "default": 100, "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.RunRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Parse the posted pipeline config (YAML or JSON) and run its stages in the background",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Start a pipeline run",
                "parameters": [
                    {"type": "string", "description": "Last stage to run", "name": "until", "in": "query"},
                    {"description": "Pipeline configuration", "name": "config", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.CreateRunResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RunRecord"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/stages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run stages",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.StageRecord"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/errors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run errors",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ErrorRecord"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/artifacts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run artifacts",
                "parameters": [{"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.ArtifactRecord"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/pipelines/{name}/predict": {
            "post": {
                "description": "Score rows with the model stored by the last successful training stage of the pipeline",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["predictions"],
                "summary": "Predict",
                "parameters": [
                    {"type": "string", "description": "Pipeline name", "name": "name", "in": "path", "required": true},
                    {"description": "Rows to score", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.PredictRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.PredictResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.CreateRunResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "status": {"type": "string"},
                "stages": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "issues": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handler.PredictRequest": {
            "type": "object",
            "properties": {
                "rows": {"type": "array", "items": {"type": "object", "additionalProperties": {"type": "number"}}},
                "threshold": {"type": "number"}
            }
        },
        "handler.PredictResponse": {
            "type": "object",
            "properties": {
                "algorithm": {"type": "string"},
                "features": {"type": "array", "items": {"type": "string"}},
                "predictions": {"type": "array", "items": {"$ref": "#/definitions/components.Prediction"}}
            }
        },
        "components.Prediction": {
            "type": "object",
            "properties": {
                "score": {"type": "number"},
                "label": {"type": "number"}
            }
        },
        "model.RunRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "status": {"type": "string"},
                "stages": {"type": "array", "items": {"type": "string"}},
                "error": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        },
        "model.StageRecord": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "index": {"type": "integer"},
                "stage": {"type": "string"},
                "status": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "duration_ms": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "model.ErrorRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "run_id": {"type": "string"},
                "stage": {"type": "string"},
                "kind": {"type": "string"},
                "message": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "model.ArtifactRecord": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "kind": {"type": "string"},
                "stage": {"type": "string"},
                "seq": {"type": "integer"},
                "values": {"type": "object"},
                "created_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ML Pipeline API",
	Description:      "Start training pipeline runs, inspect their stages, errors and artifacts, and score rows with trained models.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
