package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-tabletop/config"
	"github.com/tcriess/lightspeed-tabletop/globals"
	"github.com/tcriess/lightspeed-tabletop/persistence"
	"github.com/tcriess/lightspeed-tabletop/types"
)

// A very simple CLI tool for the administration of sessions, maps and users.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	log.SetFlags(0)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show sessions, maps or users",
		Long:  `show is for printing session, map or user information with a given id.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Show: " + strings.Join(args, " "))
		},
	}
	var cmdShowSessions = &cobra.Command{
		Use:   "sessions",
		Short: "Show sessions",
		Long:  `show sessions lists all sessions.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			sessions, err := persister.GetSessions()
			if err != nil {
				globals.AppLogger.Error("could not get sessions", "error", err)
				return
			}
			s, err := json.Marshal(sessions)
			if err != nil {
				globals.AppLogger.Error("could not marshal sessions", "error", err)
				return
			}
			fmt.Println(string(s))
		},
	}
	var cmdShowSession = &cobra.Command{
		Use:   "session [session id]",
		Short: "Show session",
		Long:  `show session prints detail information about the session with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			session := types.Session{Id: args[0]}
			err := persister.GetSession(&session)
			if err != nil {
				globals.AppLogger.Error("could not get session", "error", err)
				return
			}
			s, err := json.Marshal(session)
			if err != nil {
				globals.AppLogger.Error("could not marshal session", "error", err)
				return
			}
			fmt.Println(string(s))
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `shows a listing of all available users.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			u, err := json.Marshal(users)
			if err != nil {
				globals.AppLogger.Error("could not marshal users", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := persister.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			u, err := json.Marshal(user)
			if err != nil {
				globals.AppLogger.Error("could not marshal user", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowMap = &cobra.Command{
		Use:   "map [map id]",
		Short: "Show map",
		Long:  `show map prints detail information about the map with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			gameMap := types.GameMap{Id: args[0]}
			err := persister.GetMap(&gameMap)
			if err != nil {
				globals.AppLogger.Error("could not get map", "error", err)
				return
			}
			m, err := json.Marshal(gameMap)
			if err != nil {
				globals.AppLogger.Error("could not marshal map", "error", err)
				return
			}
			fmt.Println(string(m))
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update session, map or user",
		Long:  `set creates or updates a session, map or user.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Set: " + strings.Join(args, " "))
		},
	}
	var cmdSetSession = &cobra.Command{
		Use:   "session [session definition]",
		Short: "Set session",
		Long:  `set session creates or updates a session. If the session definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			session := types.Session{}
			if err := decodeArg(args[0], &session); err != nil {
				globals.AppLogger.Error("could not decode session", "error", err)
				return
			}
			if session.Id == "" {
				globals.AppLogger.Error("no session id")
				return
			}
			if session.DmId == "" {
				globals.AppLogger.Error("no dm id")
				return
			}
			if session.Status == "" {
				session.Status = types.SessionForming
			}
			if err := persister.StoreSession(session); err != nil {
				globals.AppLogger.Error("could not store session", "error", err)
				return
			}
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{}
			if err := decodeArg(args[0], &user); err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if user.Id == "" {
				globals.AppLogger.Error("no user id")
				return
			}
			if err := persister.StoreUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	var cmdSetMap = &cobra.Command{
		Use:   "map [map definition]",
		Short: "Set map",
		Long:  `set map creates or updates a map. If the map definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			gameMap := types.GameMap{}
			if err := decodeArg(args[0], &gameMap); err != nil {
				globals.AppLogger.Error("could not decode map", "error", err)
				return
			}
			if gameMap.Id == "" {
				globals.AppLogger.Error("no map id")
				return
			}
			if gameMap.Grid != types.GridSquare && gameMap.Grid != types.GridHex {
				globals.AppLogger.Error("invalid grid type", "grid", gameMap.Grid)
				return
			}
			if gameMap.Cols <= 0 || gameMap.Rows <= 0 {
				globals.AppLogger.Error("invalid map dimensions", "cols", gameMap.Cols, "rows", gameMap.Rows)
				return
			}
			if err := persister.StoreMap(gameMap); err != nil {
				globals.AppLogger.Error("could not store map", "error", err)
				return
			}
		},
	}
	var cmdEnd = &cobra.Command{
		Use:   "end",
		Short: "end a session",
		Long:  `end moves a session into its terminal state.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("End: " + strings.Join(args, " "))
		},
	}
	var cmdEndSession = &cobra.Command{
		Use:   "session [session id]",
		Short: "End session",
		Long:  `end session sets the session status to ENDED. ENDED is terminal, the session accepts no further mutations.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			session := types.Session{Id: args[0]}
			if err := persister.GetSession(&session); err != nil {
				globals.AppLogger.Error("could not get session", "error", err)
				return
			}
			session.Status = types.SessionEnded
			if err := persister.StoreSession(session); err != nil {
				globals.AppLogger.Error("could not store session", "error", err)
				return
			}
		},
	}
	var rootCmd = &cobra.Command{Use: "lightspeed-tabletop-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdEnd)
	cmdShow.AddCommand(cmdShowSessions, cmdShowSession, cmdShowUsers, cmdShowUser, cmdShowMap)
	cmdSet.AddCommand(cmdSetSession, cmdSetUser, cmdSetMap)
	cmdEnd.AddCommand(cmdEndSession)
	rootCmd.Execute()
}

func decodeArg(arg string, v interface{}) error {
	var r io.Reader
	if arg == "-" {
		r = os.Stdin
	} else {
		r = bytes.NewReader([]byte(arg))
	}
	return json.NewDecoder(r).Decode(v)
}
