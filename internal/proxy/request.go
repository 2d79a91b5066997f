package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/router-for-me/promptdock/internal/models"
	"github.com/router-for-me/promptdock/internal/providers"
)

// Request is the body of a proxy call.
type Request struct {
	Provider string          `json:"provider" binding:"required,oneof=openai gemini anthropic openrouter"`
	Endpoint string          `json:"endpoint" binding:"required,min=1,max=500"`
	Method   string          `json:"method" binding:"omitempty,oneof=GET POST PUT DELETE"`
	Role     string          `json:"role" binding:"omitempty,oneof=gen improve vision"`
	Body     json.RawMessage `json:"body"`
}

// ProviderID returns the validated provider.
func (r Request) ProviderID() providers.ID { return providers.ID(r.Provider) }

// KeyRole returns the role used to pick the caller's key.
func (r Request) KeyRole() models.Role {
	role, _ := models.ParseRole(r.Role)
	return role
}

// HasBody reports whether a non-null body was supplied.
func (r Request) HasBody() bool {
	trimmed := bytes.TrimSpace(r.Body)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeRequest parses and validates raw. It fails on the first violation and never touches the network.
func DecodeRequest(raw []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, validationError("request body is required")
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, validationError("malformed JSON: " + err.Error())
	}
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return req, validationError(describeValidation(err))
	}
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	if !relativeEndpoint(req.Endpoint) {
		return req, validationError("endpoint must be a path relative to the provider base URL")
	}
	if req.HasBody() {
		trimmed := bytes.TrimSpace(req.Body)
		if trimmed[0] != '{' {
			return req, validationError("body must be a JSON object")
		}
	}
	return req, nil
}

// relativeEndpoint rejects anything that could move the call off the provider host.
func relativeEndpoint(endpoint string) bool {
	if strings.HasPrefix(endpoint, "//") {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		field := strings.ToLower(first.Field())
		switch first.Tag() {
		case "required":
			return field + " is required"
		case "oneof":
			return field + " must be one of: " + first.Param()
		case "min", "max":
			return field + " length must be between 1 and 500"
		default:
			return field + " is invalid"
		}
	}
	return err.Error()
}
