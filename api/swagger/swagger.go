package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Portal Liceo Tecpan Bulk Provisioning API",
        "description": "Validate spreadsheets of students, teachers and directors and create their accounts",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Bulk Users", "description": "Bulk user upload and provisioning"}
    ],
    "paths": {
        "/users/bulk/validate": {
            "post": {
                "tags": ["Bulk Users"],
                "summary": "Validate a bulk user file",
                "description": "Parse a CSV or XLSX upload and classify every row as valid or rejected. Nothing is saved.",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json", "text/csv"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Empty, unparseable or missing columns", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "415": {"description": "Unsupported file type", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/bulk/provision": {
            "post": {
                "tags": ["Bulk Users"],
                "summary": "Provision validated users",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProvisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "No user created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Nothing was saved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/bulk/batches/{id}": {
            "get": {
                "tags": ["Bulk Users"],
                "summary": "Get a provisioning batch",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/users/bulk/batches/{id}/report": {
            "get": {
                "tags": ["Bulk Users"],
                "summary": "Download a provisioning batch report",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "NormalizedRow": {
            "type": "object",
            "required": ["email", "password", "rol", "nombre", "apellido"],
            "properties": {
                "line": {"type": "integer"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "rol": {"type": "string", "enum": ["student", "teacher", "director"]},
                "nombre": {"type": "string"},
                "apellido": {"type": "string"},
                "codigo_personal": {"type": "string"},
                "plan": {"type": "string", "enum": ["diario", "fin_de_semana"]},
                "jornada": {"type": "string", "enum": ["diario", "fin_de_semana", "ambas"]},
                "grado": {"type": "string"}
            }
        },
        "ProvisionRequest": {
            "type": "object",
            "properties": {
                "rows": {"type": "array", "items": {"$ref": "#/definitions/NormalizedRow"}},
                "preview_id": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
