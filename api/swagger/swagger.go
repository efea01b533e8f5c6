package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Meridian Practice API",
        "description": "Appointment scheduling, content and operations API for a clinical psychology practice",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Staff authentication"},
        {"name": "Availability", "description": "Weekly template, date overrides and effective slots"},
        {"name": "Appointments", "description": "Booking and appointment lifecycle"},
        {"name": "Posts", "description": "Blog and podcast content"},
        {"name": "Messages", "description": "Contact form inbox"},
        {"name": "Newsletter", "description": "Subscribers and issue delivery"},
        {"name": "Dashboard", "description": "Operational aggregates"},
        {"name": "Exports", "description": "Printable and downloadable exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Staff login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/posts": {
            "get": {
                "tags": ["Posts"],
                "summary": "List published posts",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/posts/{slug}": {
            "get": {
                "tags": ["Posts"],
                "summary": "Get a published post by slug",
                "parameters": [
                    {"name": "slug", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/contact": {
            "post": {
                "tags": ["Messages"],
                "summary": "Submit a contact message",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/newsletter/subscribe": {
            "post": {
                "tags": ["Newsletter"],
                "summary": "Subscribe to the newsletter",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubscribeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/newsletter/unsubscribe": {
            "get": {
                "tags": ["Newsletter"],
                "summary": "Unsubscribe with a token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Unknown token"}
                }
            }
        },
        "/availability/{date}": {
            "get": {
                "tags": ["Availability"],
                "summary": "Open slots for one date",
                "parameters": [
                    {"name": "date", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid date"}
                }
            }
        },
        "/appointments": {
            "post": {
                "tags": ["Appointments"],
                "summary": "Book an open slot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookAppointmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already booked"}
                }
            }
        },
        "/staff/availability/{date}": {
            "get": {
                "tags": ["Availability"],
                "summary": "Resolved schedule for one date",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "date", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/staff/availability/recurring": {
            "get": {
                "tags": ["Availability"],
                "summary": "List weekly template slots",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Availability"],
                "summary": "Replace template slots for selected weekdays",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkRecurringEditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/staff/availability/overrides": {
            "put": {
                "tags": ["Availability"],
                "summary": "Replace overrides for one date",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DateOverrideEditRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/staff/appointments": {
            "get": {
                "tags": ["Appointments"],
                "summary": "List appointments",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/staff/appointments/{id}/status": {
            "put": {
                "tags": ["Appointments"],
                "summary": "Transition appointment status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed"}
                }
            }
        },
        "/staff/newsletters/{id}/send": {
            "post": {
                "tags": ["Newsletter"],
                "summary": "Send an issue to all active subscribers",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "409": {"description": "Issue already sent"}
                }
            }
        },
        "/staff/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Dashboard summary",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/staff/exports/day-sheet/{date}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Printable day sheet PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "date", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF file"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "BookAppointmentRequest": {
            "type": "object",
            "properties": {
                "client_name": {"type": "string"},
                "client_email": {"type": "string"},
                "client_phone": {"type": "string"},
                "date": {"type": "string"},
                "start_time": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["client_name", "client_email", "date", "start_time"]
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["pending", "confirmed", "completed", "cancelled"]}
            },
            "required": ["status"]
        },
        "BulkRecurringEditRequest": {
            "type": "object",
            "properties": {
                "weekdays": {"type": "array", "items": {"type": "integer"}},
                "times": {"type": "array", "items": {"type": "string"}},
                "duration_minutes": {"type": "integer"},
                "session_type": {"type": "string"}
            },
            "required": ["weekdays"]
        },
        "DateOverrideEditRequest": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "selected_times": {"type": "array", "items": {"type": "string"}},
                "reason": {"type": "string"}
            },
            "required": ["date"]
        },
        "SubmitMessageRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "subject": {"type": "string"},
                "body": {"type": "string"}
            },
            "required": ["name", "email", "body"]
        },
        "SubscribeRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"}
            },
            "required": ["email"]
        },
        "EffectiveSlot": {
            "type": "object",
            "properties": {
                "time": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "session_type": {"type": "string"},
                "origin": {"type": "string", "enum": ["recurring", "special"]},
                "is_booked": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"}
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
