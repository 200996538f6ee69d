// Package docs registers the OpenAPI description of the zmapd HTTP API with
// swag. Regenerate with `swag init -g cmd/zmapd/docs.go` after changing the
// handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/remote": {
            "post": {
                "consumes": ["application/xml"],
                "produces": ["application/xml"],
                "summary": "Run a remote control command",
                "responses": {
                    "200": {"description": "response envelope", "schema": {"type": "string"}},
                    "400": {"description": "malformed envelope", "schema": {"type": "string"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Manager, ZMap and view status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/zmaps": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Open a ZMap with one view of a region",
                "parameters": [
                    {"description": "region", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.SequenceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.AddResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.AddResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.SequenceRequest": {
            "type": "object",
            "properties": {
                "sequence": {"type": "string", "example": "chr1"},
                "start": {"type": "integer", "example": 1},
                "end": {"type": "integer", "example": 100000}
            }
        },
        "types.AddResponse": {
            "type": "object",
            "properties": {
                "result": {"type": "string", "example": "ok"},
                "zmap_id": {"type": "string"},
                "view_id": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "zmaps": {"type": "array", "items": {"type": "object"}},
                "sources": {"type": "array", "items": {"type": "object"}},
                "uptime_seconds": {"type": "integer"},
                "loads_total": {"type": "integer"},
                "connection_failures_total": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "zmapd API",
	Description:      "Remote control and status API of the zmapd view manager.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
