package main

import (
	"net/http"

	"flowdesk/account"
	"flowdesk/audit"
	"flowdesk/bizerror"
	"flowdesk/common"
	"flowdesk/es"
	"flowdesk/indices"
	"flowdesk/indices/indexlog"
	"flowdesk/infra/tracing"
	"flowdesk/persistence"
	"flowdesk/session"
	"flowdesk/sessions"
	"flowdesk/workflow"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Infoln("no .env file loaded")
	}
	logrus.Infoln("service start")

	closer, err := tracing.InitTracing(common.GetServiceName())
	if err != nil {
		logrus.Fatalf("tracing init failed %v\n", err)
	}
	defer closer.Close()

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		logrus.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			logrus.Fatalf("failed to prepare database %v\n", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		logrus.Fatalf("database connection failed %v\n", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	// database migration (race condition)
	err = ds.GormDB(nil).AutoMigrate(&account.User{}, &workflow.WorkflowItem{}, &audit.AuditLog{}, &indexlog.IndexLogRecord{}).Error
	if err != nil {
		logrus.Fatalf("database migration failed %v\n", err)
	}

	if err := account.DefaultSecurityConfiguration(); err != nil {
		logrus.Fatalf("security bootstrap failed %v\n", err)
	}

	es.CreateClientFromEnv()
	audit.Handlers = append(audit.Handlers, indices.IndexWorkflowAuditHandle)
	indices.StartCron()

	engine := gin.Default()
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "flowdesk")
	})

	sessions.RegisterSessionsHandler(engine)
	sessions.RegisterSessionHandler(engine, session.SimpleAuthFilter())
	account.RegisterUsersRestAPI(engine, session.SimpleAuthFilter())
	workflow.RegisterWorkflowsRestAPI(engine, session.SimpleAuthFilter())
	audit.RegisterAuditLogsRestAPI(engine, session.SimpleAuthFilter())
	indices.RegisterIndicesRestAPI(engine, session.SimpleAuthFilter())

	err = engine.Run(":80")
	if err != nil {
		panic(err)
	}
}
