package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/2beens/contactform/internal/telemetry/metrics"
	"github.com/2beens/contactform/internal/telemetry/tracing"
	"github.com/2beens/contactform/pkg"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=messages_test

var errTrailingData = errors.New("unexpected data after JSON body")

type messagesRepo interface {
	Insert(ctx context.Context, name, email, message string) (*Message, error)
	ListAll(ctx context.Context) ([]Message, error)
}

// ValidationIssue describes one rejected field of a create request.
type ValidationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type Handler struct {
	repo     messagesRepo
	metrics  *metrics.Manager
	validate *validator.Validate
}

func NewHandler(repo messagesRepo, metrics *metrics.Manager) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		repo:     repo,
		metrics:  metrics,
		validate: validate,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/messages", handler.HandleList).Methods("GET", "OPTIONS").Name("list-messages")
	router.HandleFunc("/api/messages", handler.HandleCreate).Methods("POST").Name("new-message")
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "GET, POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "messagesHandler.list")
	defer span.End()

	messages, err := handler.repo.ListAll(ctx)
	if err != nil {
		kind := KindOf(err)
		handler.metrics.CounterStoreErrors.WithLabelValues(OpList, kind.String()).Inc()
		log.WithField("kind", kind).Errorf("list messages: %s", err)
		span.RecordError(err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving messages: %s", err))
		return
	}

	if messages == nil {
		messages = []Message{}
	}
	span.SetAttributes(attribute.Int("messages.count", len(messages)))

	pkg.WriteJSON(w, http.StatusOK, messages)
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "messagesHandler.create")
	defer span.End()

	var req NewMessageRequest
	if err := decodeSingleValue(r.Body, &req); err != nil {
		log.Debugf("create message, decode request: %s", err)
		pkg.WriteJSONError(w, http.StatusUnprocessableEntity, []ValidationIssue{decodeIssue(err)})
		return
	}

	if issues := handler.validateRequest(req); len(issues) > 0 {
		log.Debugf("create message, invalid request: %d issue(s)", len(issues))
		pkg.WriteJSONError(w, http.StatusUnprocessableEntity, issues)
		return
	}

	created, err := handler.repo.Insert(ctx, req.Name, req.Email, req.Message)
	if err != nil {
		kind := KindOf(err)
		handler.metrics.CounterStoreErrors.WithLabelValues(OpInsert, kind.String()).Inc()
		log.WithField("kind", kind).Errorf("create message [%s]: %s", req.Email, err)
		span.RecordError(err)

		switch kind {
		case KindConfig:
			pkg.WriteJSONError(w, http.StatusBadRequest, err.Error())
		case KindNotFound:
			pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to insert message")
		default:
			pkg.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Error creating message: %s", err))
		}
		return
	}

	if created == nil {
		handler.metrics.CounterStoreErrors.WithLabelValues(OpInsert, KindNotFound.String()).Inc()
		log.Errorf("create message [%s]: store returned no message", req.Email)
		pkg.WriteJSONError(w, http.StatusInternalServerError, "Failed to insert message")
		return
	}

	handler.metrics.CounterMessagesCreated.Inc()
	span.SetAttributes(attribute.String("message.id", created.ID))

	log.Printf("new message stored: [%s] from [%s]", created.ID, created.Email)
	pkg.WriteJSON(w, http.StatusOK, created)
}

func (handler *Handler) validateRequest(req NewMessageRequest) []ValidationIssue {
	err := handler.validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []ValidationIssue{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}
	}

	issues := make([]ValidationIssue, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		issue := ValidationIssue{Loc: []string{"body", fieldErr.Field()}}
		switch fieldErr.Tag() {
		case "required":
			issue.Msg = "Field required"
			issue.Type = "missing"
		case "email":
			issue.Msg = "value is not a valid email address"
			issue.Type = "value_error"
		default:
			issue.Msg = fmt.Sprintf("failed on the %q rule", fieldErr.Tag())
			issue.Type = "value_error"
		}
		issues = append(issues, issue)
	}

	return issues
}

// decodeSingleValue rejects bodies carrying anything but whitespace after the
// first JSON value.
func decodeSingleValue(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(dest); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func decodeIssue(err error) ValidationIssue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return ValidationIssue{
				Loc:  []string{"body"},
				Msg:  "Input should be a valid object",
				Type: "model_attributes_type",
			}
		}
		return ValidationIssue{
			Loc:  []string{"body", typeErr.Field},
			Msg:  "Input should be a valid string",
			Type: "string_type",
		}
	}

	return ValidationIssue{
		Loc:  []string{"body"},
		Msg:  "JSON decode error",
		Type: "json_invalid",
	}
}
