package boot

import (
	"context"
	"log"
	"os"

	"cshop/src/common"
	"cshop/src/config"
	"cshop/src/db"
	"cshop/src/lib"
	"cshop/src/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.Customer{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentTracking{},
		&models.OrderScreenshot{},
		&models.InventoryChange{},
		&models.Notification{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitEngine wires the production engine: gorm for orders, the in-memory
// session store mirrored to postgres, Bakong as the acquirer.
func InitEngine() (*common.Engine, error) {
	issuer, err := lib.GetKHQRIssuer()
	if err != nil {
		return nil, err
	}
	acquirer := lib.GetBakongClient()
	orders := &common.OrderGateway{}
	sessions := common.NewSessionStore(&common.GormSessionPersister{TTL: config.SessionTTL()}, config.SessionTTL())
	carts := &common.RedisCartStore{}
	events := &common.NotificationEvents{}
	coordinator := common.NewCoordinator(orders, sessions, carts, events)
	poller := common.NewPoller(sessions, acquirer, coordinator, common.PollerConfig{
		Interval:  config.PollInterval(),
		Grace:     config.PollGrace(),
		Timeout:   config.AcquirerTimeout(),
		Workers:   config.PollWorkers,
		QueueSize: config.PollQueueSize,
	})
	var objects common.ObjectStore
	if os.Getenv("S3_SCREENSHOTS_BUCKET") != "" {
		objects = &common.S3ObjectStore{}
	} else {
		dir := os.Getenv("SCREENSHOTS_DIR")
		if dir == "" {
			dir = "./screenshots"
		}
		objects = &common.LocalObjectStore{Dir: dir}
	}
	screenshots := common.NewScreenshotVerifier(orders, &common.GormScreenshotRecords{}, objects, coordinator, config.MaxScreenshotBytes, config.ScreenshotRejectMin)
	eng := &common.Engine{
		Sessions:        sessions,
		Orders:          orders,
		Carts:           carts,
		Events:          events,
		Coordinator:     coordinator,
		Poller:          poller,
		Screenshots:     screenshots,
		Issuer:          issuer,
		Acquirer:        acquirer,
		SessionTTL:      config.SessionTTL(),
		AcquirerTimeout: config.AcquirerTimeout(),
	}
	return eng, nil
}

// StartBackground rehydrates live sessions, starts the poller and schedules
// the session sweeper.
func StartBackground(eng *common.Engine) {
	n, err := eng.Sessions.Rehydrate()
	if err != nil {
		log.Printf("Error rehydrating payment sessions: %s\n", err.Error())
	} else if n > 0 {
		log.Printf("Rehydrated %d payment sessions\n", n)
	}
	eng.Poller.Start()

	jobId, err := lib.CreateCronJob(func() {
		eng.Sessions.Sweep()
	}, config.SweepInterval())
	if err != nil {
		log.Printf("Error scheduling session sweeper: %s\n", err.Error())
	} else {
		log.Printf("Session sweeper scheduled: %s\n", *jobId)
	}

	_, err = lib.CreateOneTimeCronJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()),
		gocron.NewTask(func() {
			if _, err := lib.KafkaCreateTopics("payment-events"); err != nil {
				log.Printf("Error creating topics: %s\n", err.Error())
			}
		}),
	)
	if err != nil {
		log.Printf("Error scheduling topic creation: %s\n", err.Error())
	}

	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	sched.Start()
}

// StopBackground drains the poller and shuts the scheduler down.
func StopBackground(ctx context.Context, eng *common.Engine) {
	if err := eng.Poller.Stop(ctx); err != nil {
		log.Printf("Error stopping poller: %s\n", err.Error())
	}
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
	}
}
