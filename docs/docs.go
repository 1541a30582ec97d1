// Package docs registers the OpenAPI description of the worker's status API
// with swag, where gin-swagger serves it from /docs/doc.json.
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Worker identity and status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WorkerInfoResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness with last publish time and broker state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/streams": {
            "get": {
                "produces": ["application/json"],
                "tags": ["streams"],
                "summary": "Snapshot of every stream",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StreamsResponse"}}
                }
            }
        },
        "/streams/{hive_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["streams"],
                "summary": "Snapshot of one stream",
                "parameters": [
                    {"type": "string", "description": "Hive ID", "name": "hive_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StreamStatus"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/streams/{hive_id}/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["streams"],
                "summary": "Recent publish attempts from the journal",
                "parameters": [
                    {"type": "string", "description": "Hive ID", "name": "hive_id", "in": "path", "required": true},
                    {"type": "integer", "default": 50, "minimum": 1, "maximum": 1000, "description": "Entries to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HistoryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Journal disabled", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/system/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Runtime, CPU, process and publisher statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "worker_id": {"type": "string"},
                "streams": {"type": "integer"},
                "last_publish": {"type": "string", "format": "date-time", "x-nullable": true},
                "publisher_connected": {"type": "boolean"}
            }
        },
        "handlers.WorkerInfoResponse": {
            "type": "object",
            "properties": {
                "worker_id": {"type": "string"},
                "status": {"type": "string"},
                "version": {"type": "string"},
                "capabilities": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.StreamsResponse": {
            "type": "object",
            "properties": {
                "streams": {"type": "array", "items": {"$ref": "#/definitions/models.StreamStatus"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.HistoryResponse": {
            "type": "object",
            "properties": {
                "hive_id": {"type": "string"},
                "entries": {"type": "array", "items": {"$ref": "#/definitions/journal.Entry"}},
                "count": {"type": "integer"}
            }
        },
        "journal.Entry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "hive_id": {"type": "string"},
                "topic": {"type": "string"},
                "payload": {"type": "string"},
                "ok": {"type": "boolean"},
                "error": {"type": "string"},
                "published_at": {"type": "string", "format": "date-time"}
            }
        },
        "models.StreamStatus": {
            "type": "object",
            "properties": {
                "hive_id": {"type": "string"},
                "apiary_id": {"type": "string"},
                "algo": {"type": "string", "enum": ["opencv", "yolo", "grpc"]},
                "bees_in": {"type": "integer"},
                "bees_out": {"type": "integer"},
                "fps": {"type": "number"},
                "state": {"type": "string"},
                "ticks": {"type": "integer"},
                "timeouts": {"type": "integer"},
                "active_tracks": {"type": "integer"},
                "last_tick": {"type": "string", "format": "date-time"},
                "last_publish": {"type": "string", "format": "date-time"},
                "last_publish_ok": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Beecount Worker API",
	Description:      "Read-only status API of a worker that counts bees crossing hive entrance lines and publishes per-hive telemetry over MQTT or NATS",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
