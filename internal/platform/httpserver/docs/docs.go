// Package docs registers the OpenAPI document served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/tasks/acquire": {
            "post": {
                "tags": ["tasks"],
                "summary": "Acquire or refresh the caller's review lease",
                "parameters": [{"$ref": "#/parameters/UserID"}],
                "responses": {
                    "200": {"description": "Leased document or no_more_tasks", "schema": {"$ref": "#/definitions/AcquireTaskResponse"}},
                    "401": {"$ref": "#/responses/Error"}
                }
            }
        },
        "/tasks/{document_id}": {
            "get": {
                "tags": ["tasks"],
                "summary": "Fetch the document the caller currently holds",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/DocumentID"}],
                "responses": {"200": {"description": "Task"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/tasks/{document_id}/renew": {
            "post": {
                "tags": ["tasks"],
                "summary": "Heartbeat the caller's lease",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/DocumentID"}],
                "responses": {"200": {"description": "Renewed"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/tasks/{document_id}/release": {
            "post": {
                "tags": ["tasks"],
                "summary": "Release the caller's lease (idempotent)",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/DocumentID"}],
                "responses": {"200": {"description": "Released or already free"}}
            }
        },
        "/tasks/{document_id}/submit": {
            "post": {
                "tags": ["tasks"],
                "summary": "Submit decisions for every assertion plus optional additions",
                "parameters": [
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/DocumentID"},
                    {"name": "Idempotency-Key", "in": "header", "type": "string"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "Submitted"}, "409": {"$ref": "#/responses/Error"}, "422": {"$ref": "#/responses/Error"}}
            }
        },
        "/arbitration/queue": {
            "get": {
                "tags": ["arbitration"],
                "summary": "List assertions awaiting arbitration",
                "parameters": [
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/UserRole"},
                    {"name": "only_conflicts", "in": "query", "type": "boolean", "default": true},
                    {"name": "include_pending", "in": "query", "type": "boolean", "default": false},
                    {"name": "document_id", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "Queue"}, "403": {"$ref": "#/responses/Error"}}
            }
        },
        "/arbitration/decide": {
            "post": {
                "tags": ["arbitration"],
                "summary": "Record a terminal admin decision",
                "parameters": [
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/UserRole"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "Decided"}, "409": {"$ref": "#/responses/Error"}}
            }
        },
        "/arbitration/history": {
            "get": {
                "tags": ["arbitration"],
                "summary": "Arbitration rulings recorded for one assertion",
                "parameters": [
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/UserRole"},
                    {"name": "document_id", "in": "query", "type": "string", "required": true},
                    {"name": "assertion_key", "in": "query", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "History"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/documents/{document_id}/final": {
            "get": {
                "tags": ["consensus"],
                "summary": "Final status for each assertion of a document",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/DocumentID"}],
                "responses": {"200": {"description": "Final decisions"}}
            }
        },
        "/export/consensus": {
            "get": {
                "tags": ["export"],
                "summary": "Stream the consensus as JSON lines",
                "produces": ["application/x-ndjson"],
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/UserRole"}],
                "responses": {"200": {"description": "JSONL stream"}}
            }
        },
        "/export/snapshot": {
            "post": {
                "tags": ["export"],
                "summary": "Publish an immutable consensus snapshot",
                "parameters": [
                    {"$ref": "#/parameters/UserID"},
                    {"$ref": "#/parameters/UserRole"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"confirm": {"type": "boolean"}}}}
                ],
                "responses": {"201": {"description": "Snapshot"}, "400": {"$ref": "#/responses/Error"}}
            }
        },
        "/export/snapshots": {
            "get": {
                "tags": ["export"],
                "summary": "List published snapshots",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/UserRole"}],
                "responses": {"200": {"description": "Snapshots"}}
            }
        },
        "/admin/leases": {
            "get": {
                "tags": ["admin"],
                "summary": "List live leases",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/UserRole"}],
                "responses": {"200": {"description": "Leases"}}
            }
        },
        "/admin/stats": {
            "get": {
                "tags": ["admin"],
                "summary": "Review progress counters",
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/UserRole"}],
                "responses": {"200": {"description": "Stats"}}
            }
        },
        "/admin/documents/import": {
            "post": {
                "tags": ["admin"],
                "summary": "Import or merge corpus documents (JSON or JSONL)",
                "consumes": ["application/json", "application/x-ndjson"],
                "parameters": [{"$ref": "#/parameters/UserID"}, {"$ref": "#/parameters/UserRole"}],
                "responses": {"200": {"description": "Import result"}}
            }
        },
        "/meta/vocab": {
            "get": {
                "tags": ["meta"],
                "summary": "Predicate and entity type whitelists",
                "responses": {"200": {"description": "Vocabulary"}}
            }
        }
    },
    "parameters": {
        "UserID": {"name": "X-User-Id", "in": "header", "type": "string", "required": true},
        "UserRole": {"name": "X-User-Role", "in": "header", "type": "string", "enum": ["reviewer", "admin"]},
        "DocumentID": {"name": "document_id", "in": "path", "type": "string", "required": true}
    },
    "responses": {
        "Error": {"description": "Error body", "schema": {"$ref": "#/definitions/ErrorResponse"}}
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "violations": {"type": "array", "items": {"type": "object"}}
            }
        },
        "AcquireTaskResponse": {
            "type": "object",
            "properties": {
                "document": {"type": "object"},
                "lease": {"type": "object"},
                "refreshed": {"type": "boolean"},
                "no_more_tasks": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Review Consensus API",
	Description:      "Lease-based assertion review, arbitration and consensus export.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
