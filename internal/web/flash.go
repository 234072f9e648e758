package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/portal/internal/logging"
	"github.com/JonMunkholm/portal/internal/web/templates"
)

const flashCookieName = "portal_flash"

// maxFlashes bounds the cookie when redirects chain without a render.
const maxFlashes = 5

// addFlash queues a message for the next rendered page. Messages set
// earlier in the same response are kept.
func addFlash(w http.ResponseWriter, r *http.Request, level, message string) {
	flashes := append(pendingFlashes(w, r), templates.Flash{Level: level, Message: message})
	if len(flashes) > maxFlashes {
		flashes = flashes[len(flashes)-maxFlashes:]
	}
	setFlashCookie(w, flashes)
}

// takeFlashes returns queued messages and clears the cookie so each is
// shown once.
func takeFlashes(w http.ResponseWriter, r *http.Request) []templates.Flash {
	flashes := readFlashCookie(r)
	if len(flashes) > 0 {
		http.SetCookie(w, &http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	return flashes
}

// pendingFlashes is what the client sent plus anything already set on w.
func pendingFlashes(w http.ResponseWriter, r *http.Request) []templates.Flash {
	for _, line := range w.Header().Values("Set-Cookie") {
		if c, err := http.ParseSetCookie(line); err == nil && c.Name == flashCookieName {
			return decodeFlashes(c.Value)
		}
	}
	return readFlashCookie(r)
}

func readFlashCookie(r *http.Request) []templates.Flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}
	flashes := decodeFlashes(c.Value)
	if flashes == nil && c.Value != "" {
		logging.FromContext(r.Context()).Debug("discarding unreadable flash cookie")
	}
	return flashes
}

func setFlashCookie(w http.ResponseWriter, flashes []templates.Flash) {
	data, err := json.Marshal(flashes)
	if err != nil {
		return
	}

	// Replace any flash cookie already on the response.
	h := w.Header()
	lines := h.Values("Set-Cookie")
	h.Del("Set-Cookie")
	for _, line := range lines {
		if c, err := http.ParseSetCookie(line); err == nil && c.Name == flashCookieName {
			continue
		}
		h.Add("Set-Cookie", line)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func decodeFlashes(value string) []templates.Flash {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var flashes []templates.Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil
	}
	return flashes
}
