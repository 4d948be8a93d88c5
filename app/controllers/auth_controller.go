package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
	"github.com/ManuelReschke/MemberFox/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/MemberFox/internal/pkg/session"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
)

const (
	AUTH_KEY        string = "authenticated"
	USER_ID         string = "user_id"
	USER_NAME       string = "username"
	USER_EMAIL      string = "user_email"
	USER_IS_ADMIN   string = "isAdmin"
	USER_MEMBERSHIP string = "user_membership"
)

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		var (
			user models.User
			err  error
		)
		fm := fiber.Map{
			"type": "error",
		}

		// notice: in production you should not inform the user
		// with detailed messages about login failures
		result := database.GetDB().Where("email = ?", c.FormValue("email")).First(&user)
		if result.Error != nil {
			fm["message"] = "There is a problem with the login process"

			return flash.WithError(c, fm).Redirect("/login")
		}

		if models.CheckPasswordHash(c.FormValue("password"), user.Password) == false {
			fm["message"] = "There is a problem with the login process"

			return flash.WithError(c, fm).Redirect("/login")
		}

		if user.Status != models.STATUS_ACTIVE {
			fm["message"] = "Dein Konto ist deaktiviert"

			return flash.WithError(c, fm).Redirect("/login")
		}

		sess, err := session.GetSessionStore().Get(c)
		if err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)

			return flash.WithError(c, fm).Redirect("/login")
		}

		sess.Set(AUTH_KEY, true)
		sess.Set(USER_ID, user.ID)
		sess.Set(USER_NAME, user.Name)
		sess.Set(USER_EMAIL, user.Email)
		sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)

		err = sess.Save()
		if err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)

			return flash.WithError(c, fm).Redirect("/login")
		}

		database.GetDB().Model(&user).Update("last_login_at", time.Now())

		fm = fiber.Map{
			"type":    "success",
			"message": "Glückwunsch du bist drin! Viel Spaß!",
		}

		return flash.WithSuccess(c, fm).Redirect("/")
	}

	return c.Render("auth/login", viewData(c, fiber.Map{
		"Title": "Einloggen",
	}))
}

func HandleAuthRegister(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		fm := fiber.Map{
			"type": "error",
		}

		if env.GetEnv("HCAPTCHA_SECRET_KEY", "") != "" {
			ok, err := hcaptcha.Verify(c.FormValue("h-captcha-response"))
			if err != nil || !ok {
				fm["message"] = "Captcha-Prüfung fehlgeschlagen, bitte versuche es erneut"

				return flash.WithError(c, fm).Redirect("/register")
			}
		}

		if c.FormValue("password") != c.FormValue("password_confirm") {
			fm["message"] = "Die Passwörter stimmen nicht überein"

			return flash.WithError(c, fm).Redirect("/register")
		}

		user, err := models.CreateUser(
			c.FormValue("username"),
			c.FormValue("email"),
			c.FormValue("password"),
		)
		if err != nil {
			fm["message"] = "Bitte prüfe deine Eingaben"

			return flash.WithError(c, fm).Redirect("/register")
		}

		if err := database.GetDB().Create(user).Error; err != nil {
			fm["message"] = "Registrierung fehlgeschlagen, die E-Mail ist eventuell schon vergeben"

			return flash.WithError(c, fm).Redirect("/register")
		}

		fm = fiber.Map{
			"type":    "success",
			"message": "Willkommen! Du kannst dich jetzt einloggen.",
		}

		return flash.WithSuccess(c, fm).Redirect("/login")
	}

	return c.Render("auth/register", viewData(c, fiber.Map{
		"Title":           "Registrieren",
		"HCaptchaSiteKey": env.GetEnv("HCAPTCHA_SITE_KEY", ""),
	}))
}

func HandleAuthLogout(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type": "error",
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		fm["message"] = "logged out (no sess)"

		return flash.WithError(c, fm).Redirect("/login")
	}

	err = sess.Destroy()
	if err != nil {
		fm["message"] = fmt.Sprintf("something went wrong: %s", err)

		return flash.WithError(c, fm).Redirect("/login")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "Bye bye! Auf wiedersehen.",
	}

	c.Locals(usercontext.KeyFromProtected, false)

	return flash.WithSuccess(c, fm).Redirect("/login")
}
