package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/pointbot/internal/kafka"
)

var firstNames = []string{
	"Ana", "Ben", "Carla", "Dario", "Elena", "Felix", "Gina", "Hugo", "Ines", "Jonas",
	"Kira", "Leo", "Mara", "Nico", "Olga", "Paolo", "Quinn", "Rosa", "Sami", "Tara",
}

var lastNames = []string{"", "Cruz", "Reyes", "Santos", "Garcia", "", "Lopez", "Mendoza"}

// Mix of award-worthy chatter and messages the validator rejects
var texts = []string{
	"good morning everyone, how are you all doing today?",
	"has anyone tried the new noodle place downtown",
	"I think the meeting got moved to thursday afternoon",
	"that match last night was absolutely incredible",
	"can someone share the notes from the last session",
	"lol",
	"ok",
	"hahahahahahahahahaha",
	"1234567890123456789",
	"zzzzzzzzzzzzzzzzzzzz",
	"!!!!!!!!!!!!!!!!!!!!",
}

func userFor(idx int) kafka.EventMessage {
	return kafka.EventMessage{
		UserID:    int64(100000 + idx),
		FirstName: firstNames[idx%len(firstNames)],
		LastName:  lastNames[idx%len(lastNames)],
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "chat-events", "Kafka topic")
	totalUsers := flag.Int("users", 50, "Number of distinct users")
	chatID := flag.Int64("chat", -1001, "Group chat id")
	eventsPerSecond := flag.Int("rate", 10, "Events per second")
	directPercent := flag.Int("direct", 5, "Percentage of events sent as direct messages")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *totalUsers <= 0 || *eventsPerSecond <= 0 {
		log.Fatal("users and rate must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  💬 Chat Event Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Users:            %d\n", *totalUsers)
	fmt.Printf("  Events/sec:       %d\n", *eventsPerSecond)
	fmt.Printf("  Direct messages:  %d%%\n", *directPercent)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	var messageID int64
	sendEvent := func(event kafka.EventMessage) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(strconv.FormatInt(event.UserID, 10)),
			Value: sarama.ByteEncoder(data),
		}
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(time.Second / time.Duration(*eventsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			event := userFor(rand.Intn(*totalUsers))
			event.Text = texts[rand.Intn(len(texts))]
			event.Source = "event-producer"
			messageID++
			event.MessageID = messageID

			if rand.Intn(100) < *directPercent {
				event.ChatType = "private"
				event.ChatID = event.UserID
			} else {
				event.ChatType = "group"
				event.ChatID = *chatID
			}

			sendEvent(event)
			eventCount++

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				eventCount,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
