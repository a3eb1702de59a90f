// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/cardinalhq/personalesag/internal/evidence"
	"github.com/cardinalhq/personalesag/internal/journal"
	"github.com/cardinalhq/personalesag/internal/orgindex"
	"github.com/cardinalhq/personalesag/internal/sbsys"
	"github.com/cardinalhq/personalesag/internal/sdclient"
	"github.com/cardinalhq/personalesag/internal/worker"
)

// Config aggregates configuration for the application.
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker"`
	HR       HRConfig       `mapstructure:"hr"`
	Cases    CasesConfig    `mapstructure:"cases"`
	Evidence EvidenceConfig `mapstructure:"evidence"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
}

type WorkerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	SubProcessTitle    string        `mapstructure:"sub_process_title"`
	DocumentType       string        `mapstructure:"document_type"`
	DocumentNamePrefix string        `mapstructure:"document_name_prefix"`
	IndexMaxAge        time.Duration `mapstructure:"index_max_age"`
	IndexRetryInterval time.Duration `mapstructure:"index_retry_interval"`
	IndexTimeout       time.Duration `mapstructure:"index_timeout"`
}

// HRConfig points at the HR registry. Either Region or Institutions selects
// which institutions' departments make up the index.
type HRConfig struct {
	URL          string        `mapstructure:"url"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Region       string        `mapstructure:"region"`
	Institutions []string      `mapstructure:"institutions"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type CasesConfig struct {
	URL          string        `mapstructure:"url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	CaseKind     int           `mapstructure:"case_kind"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type EvidenceConfig struct {
	URL               string        `mapstructure:"url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	ProbeTTL          time.Duration `mapstructure:"probe_ttl"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig enables copying finished jobs to S3 before they are purged.
// Archiving is off when Bucket is empty.
type ArchiveConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	RoleARN      string `mapstructure:"role_arn"`
}

func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

type SweeperConfig struct {
	Retention time.Duration `mapstructure:"retention"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			PollInterval:       worker.DefaultPollInterval,
			CallTimeout:        worker.DefaultCallTimeout,
			SubProcessTitle:    journal.DefaultSubProcessTitle,
			DocumentType:       journal.DefaultDocumentType,
			DocumentNamePrefix: journal.DefaultDocumentNamePrefix,
			IndexMaxAge:        orgindex.DefaultMaxAge,
			IndexRetryInterval: orgindex.DefaultRetryInterval,
			IndexTimeout:       worker.DefaultIndexTimeout,
		},
		HR: HRConfig{
			Timeout: 30 * time.Second,
		},
		Cases: CasesConfig{
			CaseKind: sbsys.DefaultCaseKind,
			Timeout:  30 * time.Second,
		},
		Evidence: EvidenceConfig{
			RequestsPerSecond: float64(evidence.DefaultRate),
			ProbeTTL:          evidence.DefaultProbeTTL,
			Timeout:           evidence.DefaultTimeout,
		},
		Archive: ArchiveConfig{
			Prefix: "personalesag",
		},
		Sweeper: SweeperConfig{
			Retention: 30 * 24 * time.Hour,
			Interval:  time.Hour,
			BatchSize: 100,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "PERSONALESAG" and the dot character
// in keys is replaced by an underscore. For example, "hr.url" becomes
// "PERSONALESAG_HR_URL".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("PERSONALESAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if s := v.GetString("hr.institutions"); s != "" {
		cfg.HR.Institutions = splitList(s)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// ValidateWorker reports every setting the worker needs but was not given.
func (c *Config) ValidateWorker() error {
	var errs *multierror.Error
	if c.HR.URL == "" {
		errs = multierror.Append(errs, errors.New("hr.url is required"))
	}
	if c.HR.Region == "" && len(c.HR.Institutions) == 0 {
		errs = multierror.Append(errs, errors.New("one of hr.region or hr.institutions is required"))
	}
	if c.Cases.URL == "" {
		errs = multierror.Append(errs, errors.New("cases.url is required"))
	}
	if c.Cases.TokenURL == "" {
		errs = multierror.Append(errs, errors.New("cases.token_url is required"))
	}
	if c.Cases.ClientID == "" {
		errs = multierror.Append(errs, errors.New("cases.client_id is required"))
	}
	if c.Evidence.URL == "" {
		errs = multierror.Append(errs, errors.New("evidence.url is required"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = multierror.Append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.Worker.CallTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("worker.call_timeout must be positive"))
	}
	return errs.ErrorOrNil()
}

// ValidateSweeper reports missing or unusable sweeper settings.
func (c *Config) ValidateSweeper() error {
	var errs *multierror.Error
	if c.Sweeper.Retention <= 0 {
		errs = multierror.Append(errs, errors.New("sweeper.retention must be positive"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = multierror.Append(errs, errors.New("sweeper.interval must be positive"))
	}
	if c.Sweeper.BatchSize <= 0 {
		errs = multierror.Append(errs, errors.New("sweeper.batch_size must be positive"))
	}
	return errs.ErrorOrNil()
}

func (c HRConfig) Client() sdclient.Config {
	return sdclient.Config{BaseURL: c.URL, Username: c.Username, Password: c.Password, Timeout: c.Timeout}
}

func (c CasesConfig) Client() sbsys.Config {
	return sbsys.Config{
		BaseURL:      c.URL,
		TokenURL:     c.TokenURL,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Username:     c.Username,
		Password:     c.Password,
		CaseKind:     c.CaseKind,
		Timeout:      c.Timeout,
	}
}

func (c EvidenceConfig) Client() evidence.Config {
	return evidence.Config{
		BaseURL:           c.URL,
		ClientID:          c.ClientID,
		ClientSecret:      c.ClientSecret,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		ProbeTTL:          c.ProbeTTL,
	}
}

func (c WorkerConfig) Journal() journal.Config {
	return journal.Config{
		SubProcessTitle:    c.SubProcessTitle,
		DocumentType:       c.DocumentType,
		DocumentNamePrefix: c.DocumentNamePrefix,
		CallTimeout:        c.CallTimeout,
	}
}
