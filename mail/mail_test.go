package mail

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestLink(t *testing.T) {
	got := Link("http://localhost:3000/", "/auth/new-verification", "abc-123")
	if got != "http://localhost:3000/auth/new-verification?token=abc-123" {
		t.Fatalf("unexpected link %q", got)
	}
}

func TestTemplates(t *testing.T) {
	link := "http://localhost:3000/auth/new-password?token=t1"

	msg, err := VerificationEmail(strings.Replace(link, "new-password", "new-verification", 1))
	if err != nil {
		t.Fatalf("VerificationEmail: %v", err)
	}
	if msg.Subject != "Confirm your email address" || !strings.Contains(msg.HTML, `href="http://localhost:3000/auth/new-verification?token=t1"`) {
		t.Fatalf("unexpected verification message %+v", msg)
	}

	msg, err = PasswordResetEmail(link)
	if err != nil {
		t.Fatalf("PasswordResetEmail: %v", err)
	}
	if msg.Subject != "Reset your password" || !strings.Contains(msg.HTML, ">Reset password</a>") {
		t.Fatalf("unexpected reset message %+v", msg)
	}

	msg, err = TwoFactorEmail("123456")
	if err != nil {
		t.Fatalf("TwoFactorEmail: %v", err)
	}
	if msg.HTML != "<p>Your two-factor authentication code is: 123456</p>" {
		t.Fatalf("unexpected two-factor body %q", msg.HTML)
	}
}

func TestTemplatesEscapeInput(t *testing.T) {
	msg, err := TwoFactorEmail("<script>")
	if err != nil {
		t.Fatalf("TwoFactorEmail: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatalf("expected escaped code, got %q", msg.HTML)
	}
}

func TestBuildMessageRejectsHeaderInjection(t *testing.T) {
	if _, err := buildMessage("from@x.com", "a@x.com\r\nBcc: evil@x.com", "s", "b"); !errors.Is(err, ErrHeaderInjection) {
		t.Fatalf("expected ErrHeaderInjection, got %v", err)
	}
}

func TestOutboxRecordsAndFails(t *testing.T) {
	o := &Outbox{}
	_ = o.Send(context.Background(), "a@x.com", "one", "1")
	_ = o.Send(context.Background(), "b@x.com", "two", "2")
	_ = o.Send(context.Background(), "a@x.com", "three", "3")

	last, ok := o.Last("a@x.com")
	if !ok || last.Subject != "three" {
		t.Fatalf("unexpected last message %+v", last)
	}
	if len(o.Messages()) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(o.Messages()))
	}

	o.Err = errors.New("down")
	if err := o.Send(context.Background(), "a@x.com", "four", "4"); err == nil {
		t.Fatal("expected configured error")
	}
	if len(o.Messages()) != 4 {
		t.Fatal("failed send must still be recorded")
	}
}

// fakeSMTP speaks just enough SMTP for a single unauthenticated delivery.
func fakeSMTP(t *testing.T) (string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		write("220 fake ESMTP")

		var body strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					data <- body.String()
					write("250 OK")
					continue
				}
				body.WriteString(line)
				continue
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 fake")
			case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
				write("250 OK")
			case cmd == "DATA":
				inData = true
				write("354 go ahead")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()

	return ln.Addr().String(), data
}

func TestSMTPSenderDelivers(t *testing.T) {
	addr, data := fakeSMTP(t)
	host, portStr, _ := net.SplitHostPort(addr)
	port := 0
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}

	s, err := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "no-reply@x.com"})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	if err := s.Send(context.Background(), "a@x.com", SubjectTwoFactor, "<p>hi</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case body := <-data:
		if !strings.Contains(body, "Content-Type: text/html") || !strings.Contains(body, "Subject: "+SubjectTwoFactor) {
			t.Fatalf("unexpected DATA payload %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fake server never received DATA")
	}
}

func TestSMTPSenderHonorsContext(t *testing.T) {
	s, _ := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "no-reply@x.com"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Send(ctx, "a@x.com", "s", "b"); err == nil {
		t.Fatal("expected cancelled context to fail send")
	}
}
