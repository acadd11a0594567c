package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/budgetvault/BudgetVault/internal/cache"
	"github.com/budgetvault/BudgetVault/internal/crypto"
	"github.com/budgetvault/BudgetVault/internal/engine"
	"github.com/budgetvault/BudgetVault/internal/models"
	"github.com/budgetvault/BudgetVault/internal/remote"
)

var (
	version   string
	buildDate string
)

// session bundles what the REPL needs to act on the budget.
type session struct {
	eng    *engine.SyncEngine
	cache  *cache.File
	key    []byte
	salt   []byte
	data   models.BudgetData
	author models.Author
}

func (s *session) persist() {
	snapshot, err := crypto.Encrypt(s.key, s.data)
	if err != nil {
		fmt.Println("cannot encrypt local snapshot:", err)
		return
	}
	err = s.cache.Save(&cache.Entry{
		Salt:              s.salt,
		EncryptedSnapshot: snapshot,
		LastSyncTime:      s.eng.LastSyncTime(),
	})
	if err != nil {
		fmt.Println("cannot write local cache:", err)
	}
}

// repl runs the interactive shell loop, accepting commands to manage the
// budget and its sync session.
func repl(s *session) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("budgetvault> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		ctx := context.Background()

		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, status, list, add <name> <balance>, save, load, activity, users, conflict, resolve <local|remote>, reset <reason>, online, offline, exit")
		case "status":
			fmt.Printf("State: %s\nOnline: %v\nQueued: %d\nLast sync: %s\n",
				s.eng.State(), s.eng.Online(), s.eng.QueueSize(), formatMillis(s.eng.LastSyncTime()))
		case "list":
			if len(s.data.Envelopes) == 0 {
				fmt.Println("No envelopes yet")
				continue
			}
			for _, env := range s.data.Envelopes {
				fmt.Printf("%s  %s  %.2f\n", env.ID, env.Name, env.CurrentBalance)
			}
		case "add":
			if len(args) < 3 {
				fmt.Println("Usage: add <name> <balance>")
				continue
			}
			balance, err := strconv.ParseFloat(args[len(args)-1], 64)
			if err != nil {
				fmt.Println("Balance must be a number")
				continue
			}
			name := strings.Join(args[1:len(args)-1], " ")
			s.data.Envelopes = append(s.data.Envelopes, models.Envelope{
				ID: uuid.NewString(), Name: name, CurrentBalance: balance,
			})
			s.data.LastModified = time.Now().UnixMilli()
			s.persist()
			s.eng.ScheduleAutoSync(ctx, s.data)
			fmt.Println("Envelope added, sync scheduled")
		case "save":
			s.data.LastModified = time.Now().UnixMilli()
			if err := s.eng.Save(ctx, s.data); err != nil {
				fmt.Println("Save failed:", err)
				continue
			}
			s.persist()
			if s.eng.Online() {
				fmt.Println("Saved")
			} else {
				fmt.Println("Offline: save queued")
			}
		case "load":
			data, doc, err := s.eng.Load(ctx)
			if errors.Is(err, crypto.ErrDecryption) {
				fmt.Println("Remote data does not match this password")
				continue
			}
			if err != nil {
				fmt.Println("Load failed:", err)
				continue
			}
			if data == nil {
				fmt.Println("No remote data yet; this device writes first")
				continue
			}
			s.data = *data
			s.persist()
			fmt.Printf("Loaded remote snapshot from %s (%d envelopes)\n",
				formatMillis(doc.LastUpdated), len(data.Envelopes))
		case "activity":
			records := s.eng.Activity().Recent()
			if len(records) == 0 {
				fmt.Println("No activity yet")
				continue
			}
			for _, rec := range records {
				fmt.Printf("%s  %s  %s\n", rec.Timestamp, rec.UserName, rec.Type)
			}
		case "users":
			users := s.eng.ActiveUsers()
			if len(users) == 0 {
				fmt.Println("No other writers seen this session")
				continue
			}
			for _, u := range users {
				fmt.Printf("%s (%s) last seen %s\n", u.UserName, u.UserColor, u.LastSeen)
			}
		case "conflict":
			c, err := s.eng.CheckConflict(ctx, s.eng.LastSyncTime())
			if err != nil {
				fmt.Println("Conflict check failed:", err)
				continue
			}
			if c == nil {
				fmt.Println("No conflict: local view is current")
				continue
			}
			who := "someone"
			if c.RemoteAuthor != nil {
				who = c.RemoteAuthor.UserName
			}
			fmt.Printf("Conflict: %s wrote at %s, after your last sync\n", who, formatMillis(c.RemoteUpdated))
			fmt.Println("Use 'resolve local' to keep this device's data or 'resolve remote' to adopt theirs")
		case "resolve":
			if len(args) < 2 || (args[1] != "local" && args[1] != "remote") {
				fmt.Println("Usage: resolve <local|remote>")
				continue
			}
			decision := engine.KeepLocal
			if args[1] == "remote" {
				decision = engine.AdoptRemote
			}
			resolved, err := s.eng.Resolve(ctx, decision, s.data)
			if err != nil {
				fmt.Println("Resolve failed:", err)
				continue
			}
			if resolved != nil {
				s.data = *resolved
				s.persist()
			}
			fmt.Println("Conflict resolved:", args[1])
		case "reset":
			reason := "manual reset"
			if len(args) > 1 {
				reason = strings.Join(args[1:], " ")
			}
			if err := s.eng.ResetRemote(ctx, reason); err != nil {
				fmt.Println("Reset failed:", err)
				continue
			}
			s.data = models.BudgetData{}
			s.persist()
			fmt.Println("Remote data reset")
		case "online":
			s.eng.SetOnline(ctx, true)
			fmt.Println("Online; queued saves replayed")
		case "offline":
			s.eng.SetOnline(ctx, false)
			fmt.Println("Offline; saves will queue")
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format(time.RFC3339)
}

// deriveTimeout caps the login key derivation. PBKDF2 at our iteration count
// takes well under a second on anything modern; hitting this means something
// is badly wrong with the host.
const deriveTimeout = 10 * time.Second

func deriveSessionKey(password string, salt []byte) ([]byte, []byte, error) {
	type result struct {
		key, salt []byte
		err       error
	}
	ch := make(chan result, 1)
	go func() {
		if len(salt) > 0 {
			key, err := crypto.DeriveKeyWithSalt(password, salt)
			ch <- result{key, salt, err}
			return
		}
		key, fresh, err := crypto.DeriveKey(password)
		ch <- result{key, fresh, err}
	}()
	select {
	case r := <-ch:
		return r.key, r.salt, r.err
	case <-time.After(deriveTimeout):
		return nil, nil, errors.New("key derivation timed out")
	}
}

func promptPassword() string {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("Enter shared budget password: ")
	if !scanner.Scan() {
		log.Fatal("no password provided")
	}
	password := strings.TrimSpace(scanner.Text())
	if password == "" {
		log.Fatal("password must not be empty")
	}
	return password
}

// main parses command-line flags, derives the session identity and starts
// the interactive shell.
func main() {
	var (
		baseURL   string
		cachePath string
		userName  string
		userColor string
		showVer   bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&cachePath, "cache", "budgetvault.json", "path to the local encrypted cache")
	flag.StringVar(&userName, "name", "anonymous", "display name in the activity feed")
	flag.StringVar(&userColor, "color", "", "color tag for this user")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("BudgetVault Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	password := promptPassword()

	localCache := cache.NewFile(cachePath)
	entry, err := localCache.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Reuse the stored salt so the key matches previously cached snapshots;
	// first run on a device generates a fresh one.
	key, salt, err := deriveSessionKey(password, entry.Salt)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	author := models.Author{
		ID:                crypto.DeviceFingerprint(),
		UserName:          userName,
		UserColor:         userColor,
		DeviceFingerprint: crypto.DeviceFingerprint(),
	}

	store := remote.NewHTTPStore(baseURL, logger)
	eng := engine.New(store, logger)
	err = eng.Start(context.Background(), engine.Session{
		Key:      key,
		BudgetID: crypto.DeriveIdentity(password),
		Author:   author,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Stop()

	eng.AddListener(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventRealtimeUpdate:
			fmt.Printf("\n[update] another device changed the budget (%d envelopes)\n", len(ev.Data.Envelopes))
		case engine.EventNetworkBlocked:
			fmt.Println("\n[blocked] network path blocked; working offline")
		case engine.EventSyncError:
			fmt.Println("\n[error] sync failed:", ev.Err)
		}
	})

	s := &session{eng: eng, cache: localCache, key: key, salt: salt, author: author}

	// Warm the session from the cached snapshot, then prefer remote data.
	if entry.EncryptedSnapshot != nil {
		if err := crypto.Decrypt(key, entry.EncryptedSnapshot, &s.data); err != nil {
			log.Fatal("cached snapshot does not match this password")
		}
	}
	if data, _, err := eng.Load(context.Background()); err == nil && data != nil {
		s.data = *data
		s.persist()
	} else if errors.Is(err, crypto.ErrDecryption) {
		log.Fatal("remote data does not match this password")
	}

	repl(s)
}
