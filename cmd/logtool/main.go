// Command logtool is an offline maintenance utility for a single
// storelog file: "verify" replays it and reports the resulting record
// count, "compact" rewrites it as one descriptor plus a current entry
// per surviving id, dropping superseded update/delete history. "new-id"
// prints a fresh Uid, for hand-authoring a repair record against a
// damaged log.
//
// It is not a user-provisioning tool; it operates purely on
// internal/storelog files already on disk.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mhowlett/infumap/internal/itemmodel"
	"github.com/mhowlett/infumap/internal/session"
	"github.com/mhowlett/infumap/internal/storelog"
	"github.com/mhowlett/infumap/internal/user"
	"github.com/mhowlett/infumap/pkg/uid"
)

func main() {
	action := flag.String("action", "", "verify | compact | new-id")
	path := flag.String("file", "", "path to a storelog file")
	valueType := flag.String("type", "", "item | user | session")
	flag.Parse()

	if *action == "new-id" {
		fmt.Println(uid.New())
		return
	}

	if *path == "" || *valueType == "" || (*action != "verify" && *action != "compact") {
		fmt.Println("Usage: ./logtool -action=verify|compact|new-id -file=<path> -type=item|user|session")
		os.Exit(1)
	}

	log := buildLogger()
	log = log.Named("main")

	dir := filepath.Dir(*path)
	filename := filepath.Base(*path)

	switch *action {
	case "verify":
		n, err := verify(dir, filename, *valueType, log)
		if err != nil {
			log.Fatal("verify failed", zap.Error(err))
		}
		log.Info("verify ok", zap.Int("records", n))
	case "compact":
		if err := compact(dir, filename, *valueType, log); err != nil {
			log.Fatal("compact failed", zap.Error(err))
		}
		log.Info("compact ok")
	}
}

func verify(dir, filename, valueType string, log *zap.Logger) (int, error) {
	switch valueType {
	case "item":
		s, err := storelog.Init[itemmodel.Item](dir, filename, itemmodel.Codec{}, log)
		if err != nil {
			return 0, err
		}
		defer s.Close()
		return s.Len(), nil
	case "user":
		s, err := storelog.Init[user.User](dir, filename, user.Codec{}, log)
		if err != nil {
			return 0, err
		}
		defer s.Close()
		return s.Len(), nil
	case "session":
		s, err := storelog.Init[session.Session](dir, filename, session.Codec{}, log)
		if err != nil {
			return 0, err
		}
		defer s.Close()
		return s.Len(), nil
	default:
		return 0, fmt.Errorf("unknown -type %q", valueType)
	}
}

func compact(dir, filename, valueType string, log *zap.Logger) error {
	path := filepath.Join(dir, filename)
	tmpPath := path + ".compact.tmp"
	defer os.Remove(tmpPath)

	var recordCount int
	var err error

	switch valueType {
	case "item":
		var s *storelog.Store[itemmodel.Item]
		s, err = storelog.Init[itemmodel.Item](dir, filename, itemmodel.Codec{}, log)
		if err == nil {
			recordCount = s.Len()
			err = s.CompactTo(tmpPath)
			s.Close()
		}
	case "user":
		var s *storelog.Store[user.User]
		s, err = storelog.Init[user.User](dir, filename, user.Codec{}, log)
		if err == nil {
			recordCount = s.Len()
			err = s.CompactTo(tmpPath)
			s.Close()
		}
	case "session":
		var s *storelog.Store[session.Session]
		s, err = storelog.Init[session.Session](dir, filename, session.Codec{}, log)
		if err == nil {
			recordCount = s.Len()
			err = s.CompactTo(tmpPath)
			s.Close()
		}
	default:
		return fmt.Errorf("unknown -type %q", valueType)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	log.Info("rewrote log file", zap.Int("records", recordCount))
	return nil
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
