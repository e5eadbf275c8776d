package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/oksasatya/go-user-graph/config"
	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/pkg/helpers"
)

// seed publishes user-created events so a local stack has users to follow.
// With -dup each event is published twice to exercise deduplication.
func main() {
	n := flag.Int("n", 5, "number of users to create")
	dup := flag.Bool("dup", false, "publish every event twice")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQUserCreatedQueue)
	if err != nil {
		log.Fatalf("amqp: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < *n; i++ {
		ev := entity.UserCreatedEvent{
			ID:        uuid.NewString(),
			Email:     fmt.Sprintf("demo%d@example.com", i+1),
			Username:  fmt.Sprintf("demoUser%d", i+1),
			Role:      entity.RoleUser,
			Status:    entity.StatusActive,
			CreatedAt: time.Now().UTC(),
		}
		copies := 1
		if *dup {
			copies = 2
		}
		for range copies {
			if err := pub.PublishJSON(ctx, ev.ID, "user.created", ev); err != nil {
				log.Fatalf("publish %s: %v", ev.ID, err)
			}
		}
		fmt.Printf("published user-created: id=%s username=%s\n", ev.ID, ev.Username)
	}
}
