package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/kafka"
)

var memberNames = []string{
	"Alex", "Billie", "Casey", "Devon", "Emery", "Finley", "Gray", "Harper", "Indy", "Jules",
	"Kai", "Logan", "Morgan", "Noor", "Oakley", "Parker", "Quinn", "Riley", "Sage", "Taylor",
}

func memberMessage(idx int) kafka.RouteMessage {
	name := fmt.Sprintf("%s %d", memberNames[idx%len(memberNames)], idx/len(memberNames)+1)
	return kafka.RouteMessage{
		UserID:      fmt.Sprintf("kiosk-member-%04d", idx),
		DisplayName: name,
		Email:       fmt.Sprintf("member%04d@example.com", idx),
		Provider:    "google",
	}
}

// randomRoute fills in a climb. Easier grades are logged more often and a
// quarter of sends come with a bonus.
func randomRoute(msg kafka.RouteMessage, grades []domain.GradeOption, bonuses []domain.BonusOption) kafka.RouteMessage {
	weights := []int{40, 30, 20, 10}
	roll := rand.Intn(100)
	idx := 0
	for i, w := range weights {
		if roll < w {
			idx = i
			break
		}
		roll -= w
	}
	if idx >= len(grades) {
		idx = len(grades) - 1
	}

	msg.Grade = grades[idx].Grade
	msg.RouteName = fmt.Sprintf("Problem %d", rand.Intn(60)+1)
	if rand.Intn(4) == 0 {
		msg.BonusIDs = []string{bonuses[rand.Intn(len(bonuses))].ID}
	}
	return msg
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "route-submissions", "Kafka topic")
	totalMembers := flag.Int("members", 200, "Number of simulated members")
	routesPerSecond := flag.Int("rate", 20, "Route submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *totalMembers <= 0 || *routesPerSecond <= 0 {
		log.Fatal("members and rate must be positive")
	}
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Kiosk Route Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Members:          %d\n", *totalMembers)
	fmt.Printf("  Routes/sec:       %d\n", *routesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
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

	var successCount, errorCount, routeCount int64
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
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Routes: %d, Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&routeCount),
			atomic.LoadInt64(&successCount),
			atomic.LoadInt64(&errorCount),
		)
	}

	// Key by member so one member's routes stay ordered on a partition
	sendRoute := func(msg kafka.RouteMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.UserID),
			Value: sarama.ByteEncoder(data),
		}
		atomic.AddInt64(&routeCount, 1)
	}

	grades := domain.DefaultGradeOptions()
	bonuses := domain.DefaultBonusOptions()

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(time.Second / time.Duration(*routesPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}
			member := memberMessage(rand.Intn(*totalMembers))
			sendRoute(randomRoute(member, grades, bonuses))

		case <-statsTicker.C:
			fmt.Printf("[%s] Routes: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&routeCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
