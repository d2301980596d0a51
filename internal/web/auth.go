package web

import "net/http"

// The login gate keeps casual visitors out of a locally served app. It is a
// plain string comparison against configuration, not a security boundary.

func (s *Server) loggedIn(r *http.Request) bool {
	if !s.auth.Enabled() {
		return true
	}
	c, err := r.Cookie(authCookie)
	return err == nil && c.Value == s.token
}

func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.loggedIn(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleGetLogin renders the sign-in form.
func (s *Server) handleGetLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.loggedIn(r) {
			http.Redirect(w, r, "/study", http.StatusSeeOther)
			return
		}
		s.render(w, http.StatusOK, "login", nil)
	}
}

// handlePostLogin checks the submitted credentials and sets the cookie.
func (s *Server) handlePostLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.PostFormValue("email")
		code := r.PostFormValue("access_code")
		if email != s.auth.Email || code != s.auth.AccessCode {
			s.logger.Warn("Rejected login", "email", email)
			s.render(w, http.StatusUnauthorized, "login", map[string]interface{}{
				"Error": "Invalid credentials. Please try again.",
				"Email": email,
			})
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     authCookie,
			Value:    s.token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		s.logger.Info("Login accepted", "streak", s.ledger.Streak(s.now()))
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

// handlePostLogout clears the cookie.
func (s *Server) handlePostLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: authCookie, Value: "", Path: "/", MaxAge: -1})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}
