// Package docs registers the OpenAPI description served at /swagger.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/orders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "List orders (admin: all, user: own), newest first",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/order.OrderResponse"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Place an order",
                "parameters": [
                    {"description": "Cart", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.CreateOrderRequest"}},
                    {"type": "string", "description": "Replays the original order when repeated", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Get an order (owner or admin)",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/{id}/status": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Change order status (admin)",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"description": "New status", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.UpdateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        },
        "/orders/{id}/cancel": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Cancel a PENDING order (owner)",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.OrderResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/product.HTTPError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/product.HTTPError"}}
                }
            }
        }
    },
    "definitions": {
        "order.CreateOrderItem": {
            "type": "object",
            "properties": {
                "product_id": {"type": "string", "example": "4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"},
                "quantity": {"type": "integer", "example": 2}
            }
        },
        "order.CreateOrderRequest": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.CreateOrderItem"}}
            }
        },
        "order.UpdateStatusRequest": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "PREPARING"}}
        },
        "order.ItemResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "product_id": {"type": "string"},
                "quantity": {"type": "integer"},
                "price": {"type": "string", "example": "10.00"}
            }
        },
        "order.OrderResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "status": {"type": "string", "example": "PENDING"},
                "total": {"type": "string", "example": "20.00"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.ItemResponse"}}
            }
        },
        "product.HTTPError": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "not found"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ordenes order-service API",
	Description:      "Order placement and lifecycle.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
