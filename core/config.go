package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		LogFile          string
		defaultFromEmail string

		Server     ServerConfig
		Database   DatabaseConfig
		Calendar   CalendarConfig
		Coursework CourseworkConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		TxMaxAttempts int
		TxBaseDelay   time.Duration
	}

	CalendarConfig struct {
		Timezone        string
		ConflictHorizon time.Duration
		DayStartHour    int
		DayEndHour      int
	}

	CourseworkConfig struct {
		SweepSchedule string
	}
)

// NewConfig loads the configuration of the current ENV from (in order of precedence):
// environment variables prefixed with the ENV name, config/.env.<env> and the defaults below.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Academia")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Academia <noreply@localhost>")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "academia")
	v.SetDefault("database.user", "academia")
	v.SetDefault("database.password", "academia")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.txMaxAttempts", 3)
	v.SetDefault("database.txBaseDelay", 50*time.Millisecond)

	v.SetDefault("calendar.timezone", "UTC")
	v.SetDefault("calendar.conflictHorizon", 26*7*24*time.Hour)
	v.SetDefault("calendar.dayStartHour", 7)
	v.SetDefault("calendar.dayEndHour", 22)

	v.SetDefault("coursework.sweepSchedule", "@every 1m")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	hostname, _ := os.Hostname()
	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		LogFile:          v.GetString("logFile"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      hostname,
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			TxMaxAttempts: v.GetInt("database.txMaxAttempts"),
			TxBaseDelay:   v.GetDuration("database.txBaseDelay"),
		},
		Calendar: CalendarConfig{
			Timezone:        v.GetString("calendar.timezone"),
			ConflictHorizon: v.GetDuration("calendar.conflictHorizon"),
			DayStartHour:    v.GetInt("calendar.dayStartHour"),
			DayEndHour:      v.GetInt("calendar.dayEndHour"),
		},
		Coursework: CourseworkConfig{
			SweepSchedule: v.GetString("coursework.sweepSchedule"),
		},
	}
}

// NewTestConfig returns the configuration used by tests. It never reads the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Academia",
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:8080",
		defaultFromEmail: "Academia <noreply@localhost>",
		Server: ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Database: DatabaseConfig{TxMaxAttempts: 3, TxBaseDelay: time.Millisecond},
		Calendar: CalendarConfig{
			Timezone:        "UTC",
			ConflictHorizon: 26 * 7 * 24 * time.Hour,
			DayStartHour:    7,
			DayEndHour:      22,
		},
		Coursework: CourseworkConfig{SweepSchedule: "@every 1m"},
	}
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
	}
	return *addr
}

// Location returns the timezone in which recurring times of day are interpreted.
func (conf *Config) Location() *time.Location {
	loc, err := time.LoadLocation(conf.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (db DatabaseConfig) Address() string {
	if db.Port == "" {
		return db.Host
	}
	return net.JoinHostPort(db.Host, db.Port)
}

func (db DatabaseConfig) String() string {
	return fmt.Sprintf("%s://%s/%s", db.Engine, db.Address(), db.Name)
}

// Getwd tries to find the project root, i.e. the closest parent directory holding a go.mod file.
// go-test changes the working directory to the test package being run during tests.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
