// Package docs provides the Swagger API definition.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/orgaos": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List agencies",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List history messages across all pedidos",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "per_page_num", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/keywords": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List keywords",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/keywords/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List pedidos tagged with a keyword",
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/authors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List authors",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/authors/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List an author's pedidos",
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/pedidos": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["pedidos"],
                "summary": "Queue a new pedido",
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/api/v1/pedidos/protocolo/{protocolo}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pedidos"],
                "summary": "Get a pedido by protocol",
                "parameters": [
                    {"type": "integer", "name": "protocolo", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/pedidos/id/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pedidos"],
                "summary": "Get a pedido by id",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/prepedidos": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pedidos"],
                "summary": "List queued pedidos",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/captcha/{value}": {
            "post": {
                "produces": ["application/json"],
                "tags": ["worker"],
                "summary": "Supply a challenge answer for the next login attempt",
                "parameters": [
                    {"type": "string", "name": "value", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/worker/start": {
            "post": {
                "produces": ["application/json"],
                "tags": ["worker"],
                "summary": "Start the background worker",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/worker/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["worker"],
                "summary": "Stop the background worker",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/worker/run-once": {
            "post": {
                "produces": ["application/json"],
                "tags": ["worker"],
                "summary": "Run a single worker pass",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/worker/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["worker"],
                "summary": "Report worker status",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "EsicLivre API",
	Description:      "A service for eSIC interaction: queues pedidos, drives the portal session, and serves the synchronized data.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
