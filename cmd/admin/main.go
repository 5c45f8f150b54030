package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/auth"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/config"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/db"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

// admin is the provisioning tool: a fresh deployment bootstraps its first
// tenant, service token, and memberships here, not through the HTTP API.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	repo := &tenant.Repo{DB: gdb}

	switch os.Args[1] {
	case "tenant-create":
		tenantCreate(repo, os.Args[2:])
	case "token-create":
		tokenCreate(gdb, repo, os.Args[2:])
	case "member-add":
		memberAdd(gdb, repo, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  tenant-create  -name <name> -slug <slug>
  token-create   -name <label> [-tenant <slug>] [-scopes ext,...]
  member-add     -email <email> -tenant <slug> -role <role>`)
}

func tenantCreate(repo *tenant.Repo, args []string) {
	fs := flag.NewFlagSet("tenant-create", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	slug := fs.String("slug", "", "unique slug")
	_ = fs.Parse(args)

	if *name == "" || *slug == "" {
		log.Fatal("tenant-create: -name and -slug are required")
	}

	t, err := repo.Create(*name, *slug)
	if err != nil {
		log.Fatalf("tenant-create: %v", err)
	}
	fmt.Printf("tenant created: id=%s slug=%s\n", t.ID, t.Slug)
}

func tokenCreate(gdb *gorm.DB, repo *tenant.Repo, args []string) {
	fs := flag.NewFlagSet("token-create", flag.ExitOnError)
	name := fs.String("name", "", "token label")
	slug := fs.String("tenant", "", "bind to this tenant slug (optional)")
	scopes := fs.String("scopes", tenant.ScopeRequired, "comma-separated scopes")
	_ = fs.Parse(args)

	if *name == "" {
		log.Fatal("token-create: -name is required")
	}

	var tenantID *string
	if *slug != "" {
		t, err := repo.BySlug(*slug)
		if err != nil {
			log.Fatalf("token-create: tenant %q: %v", *slug, err)
		}
		tenantID = &t.ID
	}

	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopeList = append(scopeList, s)
		}
	}
	scopesJSON, err := json.Marshal(scopeList)
	if err != nil {
		log.Fatalf("token-create: %v", err)
	}

	raw, err := tenant.GenerateToken()
	if err != nil {
		log.Fatalf("token-create: %v", err)
	}

	tok := tenant.ServiceToken{
		Name:      *name,
		TokenHash: tenant.HashToken(raw),
		Scopes:    scopesJSON,
		TenantID:  tenantID,
		Active:    true,
	}
	if err := gdb.Create(&tok).Error; err != nil {
		log.Fatalf("token-create: %v", err)
	}

	// the raw credential is shown exactly once; only the hash is stored
	fmt.Printf("token created: id=%d name=%s scopes=%s\n", tok.ID, tok.Name, scopeList)
	fmt.Printf("credential (save it now): %s\n", raw)
}

func memberAdd(gdb *gorm.DB, repo *tenant.Repo, args []string) {
	fs := flag.NewFlagSet("member-add", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	slug := fs.String("tenant", "", "tenant slug")
	role := fs.String("role", tenant.RoleTenantUser, "membership role")
	_ = fs.Parse(args)

	if *email == "" || *slug == "" {
		log.Fatal("member-add: -email and -tenant are required")
	}
	if !tenant.ValidRole(*role) {
		log.Fatalf("member-add: unknown role %q (valid: %s, %s, %s)",
			*role, tenant.RoleOwnerAdmin, tenant.RoleTenantAdmin, tenant.RoleTenantUser)
	}

	var u auth.User
	if err := gdb.Where("email = ?", strings.ToLower(*email)).First(&u).Error; err != nil {
		log.Fatalf("member-add: user %q: %v", *email, err)
	}
	t, err := repo.BySlug(*slug)
	if err != nil {
		log.Fatalf("member-add: tenant %q: %v", *slug, err)
	}

	if _, err := repo.MembershipFor(u.ID, t.ID); err == nil {
		log.Fatalf("member-add: %s is already a member of %s", *email, *slug)
	}

	m := tenant.Membership{
		UserID:   u.ID,
		TenantID: t.ID,
		Role:     *role,
		Active:   true,
	}
	if err := gdb.Create(&m).Error; err != nil {
		log.Fatalf("member-add: %v", err)
	}
	fmt.Printf("membership created: user=%s tenant=%s role=%s\n", *email, *slug, *role)
}
