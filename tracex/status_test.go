package tracex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromHTTP(t *testing.T) {
	cases := []struct {
		http int
		want StatusCode
	}{
		{200, StatusOK},
		{201, StatusOK},
		{204, StatusOK},
		{301, StatusOK},
		{304, StatusOK},
		{399, StatusOK},
		{400, StatusInvalidArgument},
		{401, StatusUnauthenticated},
		{403, StatusPermissionDenied},
		{404, StatusNotFound},
		{429, StatusResourceExhausted},
		{500, StatusInternal},
		{501, StatusUnimplemented},
		{503, StatusUnavailable},
		{504, StatusDeadlineExceeded},
		{418, StatusUnknown},
		{409, StatusUnknown},
		{502, StatusUnknown},
		{199, StatusUnknown},
		{0, StatusUnknown},
		{-1, StatusUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFromHTTP(tc.http), "http %d", tc.http)
	}
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "RESOURCE_EXHAUSTED", StatusResourceExhausted.String())
	assert.Equal(t, "UNAUTHENTICATED", StatusUnauthenticated.String())
	assert.Equal(t, "UNKNOWN", StatusCode(99).String())
	assert.EqualValues(t, 16, StatusUnauthenticated)
	assert.EqualValues(t, 4, StatusDeadlineExceeded)
}

func TestSetHTTPStatusOverwrites(t *testing.T) {
	s := &Span{recording: true}
	s.SetHTTPStatus(500)
	s.SetHTTPStatus(404)

	d := s.Snapshot()
	assert.True(t, d.HasStatus)
	assert.Equal(t, StatusNotFound, d.Status)
}
