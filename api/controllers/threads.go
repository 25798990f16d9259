package controllers

import (
	"net/http"

	"github.com/kasiviral/kasiviral-backend/api/responses"
	"github.com/kasiviral/kasiviral-backend/api/validators"
	"github.com/kasiviral/kasiviral-backend/internal/threads"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const maxTopicLength = 500

type generateRequest struct {
	Topic  string `json:"topic" validate:"required,max=500"`
	Length string `json:"length" validate:"required,length_tier"`
}

// ThreadsGenerate runs the thread generator. It is mounted behind
// RequireEntitlement so only entitled principals reach it.
func ThreadsGenerate(gen threads.Generator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gen == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "thread generator unavailable"))
			return
		}

		var body generateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		topic := validators.SanitizeString(body.Topic, maxTopicLength)
		if topic == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"topic": "is required"}))
			return
		}
		tier, err := enums.ParseLengthTier(body.Length)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed"))
			return
		}

		thread, err := gen.Generate(r.Context(), topic, tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, thread)
	}
}
