package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name  string  `json:"name" validate:"required"`
	Mode  string  `json:"mode" default:"FAST" validate:"oneof=FAST SLOW"`
	Ratio float64 `json:"ratio" default:"0.5" validate:"gt=0,lte=1"`
}

func TestValidateStructAppliesDefaults(t *testing.T) {
	req := &sampleRequest{Name: "x"}
	require.NoError(t, ValidateStruct(context.Background(), req))
	assert.Equal(t, "FAST", req.Mode)
	assert.Equal(t, 0.5, req.Ratio)
}

func TestValidateStructReportsJSONNames(t *testing.T) {
	err := ValidateStruct(context.Background(), &sampleRequest{Mode: "WARP"})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "name", verrs[0].Field)
	assert.Equal(t, "ERR_REQUIRED", verrs[0].Code)
	assert.Equal(t, "ERR_ONEOF", verrs[1].Code)
	assert.Equal(t, []string{"FAST", "SLOW"}, verrs[1].Params["options"])
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"n","ratio":2}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(r, httptest.NewRecorder())

	var req sampleRequest
	errs := ReadAndValidateRequest(c, &req)
	require.NotNil(t, errs)
	verrs := errs.([]ValidationError)
	require.Len(t, verrs, 1)
	assert.Equal(t, "ratio", verrs[0].Field)
}

func TestAppErrorResponseStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, InsufficientSampleError("only 3 matches")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_INSUFFICIENT_SAMPLE")
}
