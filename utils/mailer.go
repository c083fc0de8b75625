package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
)

// Outbound mail: Brevo HTTP API when BREVO_API_KEY is set, otherwise plain
// SMTP (SMTP_HOST/SMTP_PORT/SMTP_USER/SMTP_PASS). All sends are best-effort
// from the caller's point of view.

var mailClient = &http.Client{Timeout: 10 * time.Second}

func emailBase(bodyHTML string) string {
	return `<div style="font-family:Georgia,serif;max-width:560px;margin:0 auto;padding:24px;background:#0d0d1a;color:#e8e0ff;">` +
		`<h2 style="color:#c9a7ff;">Il mondo di Lulz</h2>` + bodyHTML +
		`<p style="margin-top:32px;font-size:12px;color:#8878aa;">Questa email è stata inviata automaticamente, non rispondere.</p></div>`
}

func sendViaBrevo(ctx context.Context, to, subject, html string) error {
	apiKey := os.Getenv("BREVO_API_KEY")
	if apiKey == "" {
		return errors.New("BREVO_API_KEY non configurata")
	}
	payload, err := json.Marshal(map[string]interface{}{
		"sender":      map[string]string{"name": "Il mondo di Lulz", "email": getenvDefault("MAIL_FROM", "noreply@ilmondodilulz.it")},
		"to":          []map[string]string{{"email": to}},
		"subject":     subject,
		"htmlContent": html,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", apiKey)

	resp, err := mailClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("brevo: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func sendViaSMTP(to, subject, html string) error {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return errors.New("SMTP_HOST non configurato")
	}
	port := getenvDefault("SMTP_PORT", "587")
	from := getenvDefault("MAIL_FROM", "noreply@ilmondodilulz.it")

	var auth smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASS"), host)
	}
	msg := strings.Join([]string{
		"From: Il mondo di Lulz <" + from + ">",
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		html,
	}, "\r\n")
	return smtp.SendMail(host+":"+port, auth, from, []string{to}, []byte(msg))
}

func sendEmail(ctx context.Context, to, subject, html string) error {
	if os.Getenv("BREVO_API_KEY") != "" {
		if err := sendViaBrevo(ctx, to, subject, html); err == nil {
			return nil
		} else {
			log.Printf("[mail] brevo fallito, provo SMTP: %v", err)
		}
	}
	return sendViaSMTP(to, subject, html)
}

// SendGiveawayWinEmail notifies a winner with the redemption code.
func SendGiveawayWinEmail(ctx context.Context, to, nome, winCode, userSign string, roundID int) error {
	body := fmt.Sprintf(
		`<p>Ciao %s,</p>
<p>la ruota ha parlato: il segno estratto è proprio il tuo, <strong>%s</strong>!</p>
<p>Hai vinto una copia cartacea del libro. Il tuo codice di riscatto per il giveaway #%d è:</p>
<p style="font-size:22px;letter-spacing:2px;"><strong>%s</strong></p>
<p>Conservalo: ti verrà chiesto per la spedizione del premio.</p>`,
		nome, userSign, roundID, winCode)
	return sendEmail(ctx, to, "Hai vinto il giveaway de Il mondo di Lulz!", emailBase(body))
}

// WinMailer adapts the mail sender to the giveaway notifier contract.
type WinMailer struct{}

func (WinMailer) NotifyWin(ctx context.Context, user *giveaway.User, winCode, userSign string, roundID int) error {
	return SendGiveawayWinEmail(ctx, user.Email, user.Nome, winCode, userSign, roundID)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
