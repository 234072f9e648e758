package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/portal/internal/web/templates"
)

func TestAddFlash_AccumulatesWithinResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	addFlash(rec, req, templates.FlashInfo, "one")
	addFlash(rec, req, templates.FlashError, "two")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	got := takeFlashes(httptest.NewRecorder(), next)
	if len(got) != 2 || got[0].Message != "one" || got[1].Level != templates.FlashError {
		t.Errorf("flashes = %+v", got)
	}
}

func TestTakeFlashes_ClearsCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	addFlash(rec, httptest.NewRequest(http.MethodGet, "/", nil), templates.FlashSuccess, "done")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	out := httptest.NewRecorder()
	takeFlashes(out, req)

	cleared := out.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("flash cookie not cleared: %+v", cleared)
	}
}

func TestDecodeFlashes_Garbage(t *testing.T) {
	if got := decodeFlashes("!!not-base64"); got != nil {
		t.Errorf("decodeFlashes = %+v, want nil", got)
	}
}
