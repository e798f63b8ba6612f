package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Smart Attendance API",
        "description": "Classroom attendance verified by QR, geofence and face match.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Sessions", "description": "Attendance session lifecycle"},
        {"name": "Verification", "description": "QR, location and face steps"},
        {"name": "Attendance", "description": "Ledger reads and manual overrides"},
        {"name": "Faces", "description": "Face template enrolment"},
        {"name": "Teachers", "description": "Subjects and classrooms"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/sessions": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start an attendance session",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Subject not assigned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Teacher already has an active session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/active": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Poll the current attendance session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/stop": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Stop an attendance session",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/stage": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get a student's verification stage",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "query", "name": "student_id", "type": "string", "required": false}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/verify/qr": {
            "post": {
                "tags": ["Verification"],
                "summary": "Submit the scanned session QR code",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/VerifyQRRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Token mismatch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Session ended", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/verify/location": {
            "post": {
                "tags": ["Verification"],
                "summary": "Submit the device location",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/VerifyLocationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Stage out of order", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Outside geofence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/verify/face": {
            "post": {
                "tags": ["Verification"],
                "summary": "Submit a face capture",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/VerifyFaceRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No enrolled template", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Face mismatch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Face engine unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance for a session",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance history for a student",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/overrides": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark students present manually",
                "description": "Ids already recorded are reported as skipped; ids outside the subject roster are reported as unknown and not written.",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/OverrideRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Subject not assigned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No target session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/faces/templates": {
            "post": {
                "tags": ["Faces"],
                "summary": "Enrol a student's reference face",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RegisterTemplateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/faces/templates/{id}": {
            "get": {
                "tags": ["Faces"],
                "summary": "Check whether a student has an enrolled face",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/me/subjects": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List the caller's assigned subjects",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{subject}/students": {
            "get": {
                "tags": ["Teachers"],
                "summary": "List the students of one of the caller's subjects",
                "parameters": [
                    {"in": "path", "name": "subject", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Subject not assigned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classrooms/{id}": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Get a classroom geofence",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown classroom", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Operational counters snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateSessionRequest": {
            "type": "object",
            "required": ["subject"],
            "properties": {
                "subject": {"type": "string"},
                "classroom_id": {"type": "string"}
            }
        },
        "VerifyQRRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "submitted_session_id": {"type": "string"},
                "qr_payload": {"type": "string"}
            }
        },
        "VerifyLocationRequest": {
            "type": "object",
            "required": ["latitude", "longitude"],
            "properties": {
                "student_id": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            }
        },
        "VerifyFaceRequest": {
            "type": "object",
            "required": ["image"],
            "properties": {
                "student_id": {"type": "string"},
                "image": {"type": "string", "description": "Base64 image or data URL"}
            }
        },
        "RegisterTemplateRequest": {
            "type": "object",
            "required": ["image"],
            "properties": {
                "student_id": {"type": "string"},
                "image": {"type": "string", "description": "Base64 image or data URL"}
            }
        },
        "OverrideRequest": {
            "type": "object",
            "required": ["subject", "student_ids"],
            "properties": {
                "subject": {"type": "string"},
                "student_ids": {"type": "array", "items": {"type": "string"}},
                "session_id": {"type": "string"}
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
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
