package main

import (
	"database/sql"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/authbridge/saml"
	"github.com/authbridge/saml/handler"
	"github.com/authbridge/saml/identity"
	"github.com/authbridge/saml/settings"
	"github.com/authbridge/saml/store"
	"github.com/hashicorp/go-hclog"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "samlbridge",
		Level: hclog.Info,
	})

	cfg, err := settings.Load()
	exitOnError(err)

	sp, err := saml.NewServiceProvider(cfg)
	exitOnError(err)

	db, err := sql.Open("sqlite3", envOr("SAMLBRIDGE_DB", "samlbridge.db"))
	exitOnError(err)
	defer db.Close()

	exitOnError(store.Migrate(db))

	binder, err := identity.NewBinder(
		store.NewBindingRepository(db),
		store.NewUserDirectory(db),
		logger.Named("binder"),
	)
	exitOnError(err)

	auth, err := identity.NewAuthenticator(sp, binder,
		identity.WithAuditSink(store.NewAuditStore(db)),
		identity.WithLogger(logger.Named("auth")),
	)
	exitOnError(err)

	http.HandleFunc(saml.CallbackPath, handler.ACSHandlerFunc(auth))
	http.HandleFunc("/auth/saml", handler.RequestHandlerFunc(sp))
	http.HandleFunc("/auth/saml/metadata", handler.MetadataHandlerFunc(sp))

	http.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		ts, _ := template.New("sso").Parse(
			`<html><form method="GET" action="/auth/saml"><button type="submit">Sign in with SAML</button></form></html>`,
		)

		ts.Execute(w, nil)
	})

	addr := envOr("SAMLBRIDGE_ADDR", ":8000")
	fmt.Printf("Visit http://localhost%s/login\n", addr)

	err = http.ListenAndServe(addr, nil)
	exitOnError(err)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("failed to run demo: %s", err.Error())
		os.Exit(1)
	}
}
