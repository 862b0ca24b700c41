package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cyrilix/robocar-base/cli"
	"github.com/cyrilix/robocar-lfsd/pkg/controls"
	"github.com/cyrilix/robocar-lfsd/pkg/detection"
	"github.com/cyrilix/robocar-lfsd/pkg/events"
	"github.com/cyrilix/robocar-lfsd/pkg/gateway"
	"github.com/cyrilix/robocar-lfsd/pkg/insim"
	"github.com/cyrilix/robocar-lfsd/pkg/perception"
	"github.com/cyrilix/robocar-lfsd/pkg/render"
	"github.com/cyrilix/robocar-lfsd/pkg/simulator"
	events2 "github.com/cyrilix/robocar-protobuf/go/events"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"go.uber.org/zap"
)

const DefaultClientId = "robocar-lfsd"

func main() {
	var mqttBroker, username, password, clientId string
	var topics events.Topics
	var topicCtrlSteering, topicCtrlThrottle string
	var lfsPath, lfsAddress, listenAddress, insimPassword, commandPrefix string
	var insimPort, vjoyPort int
	var debug bool

	mqttQos := cli.InitIntFlag("MQTT_QOS", 0)
	_, mqttRetain := os.LookupEnv("MQTT_RETAIN")

	cli.InitMqttFlags(DefaultClientId, &mqttBroker, &username, &password, &clientId, &mqttQos, &mqttRetain)

	flag.StringVar(&topics.Frame, "events-topic-camera", os.Getenv("MQTT_TOPIC_CAMERA"), "Mqtt topic to events gateway frames, use MQTT_TOPIC_CAMERA if args not set")
	flag.StringVar(&topics.Steering, "events-topic-steering", os.Getenv("MQTT_TOPIC_STEERING"), "Mqtt topic to events gateway steering, use MQTT_TOPIC_STEERING if args not set")
	flag.StringVar(&topics.Throttle, "events-topic-throttle", os.Getenv("MQTT_TOPIC_THROTTLE"), "Mqtt topic to events gateway throttle, use MQTT_TOPIC_THROTTLE if args not set")
	flag.StringVar(&topics.Snapshot, "events-topic-snapshot", os.Getenv("MQTT_TOPIC_SNAPSHOT"), "Mqtt topic to events processed telemetry, use MQTT_TOPIC_SNAPSHOT if args not set")
	flag.StringVar(&topicCtrlSteering, "topic-steering-ctrl", os.Getenv("MQTT_TOPIC_STEERING_CTRL"), "Mqtt topic to send steering instructions, use MQTT_TOPIC_STEERING_CTRL if args not set")
	flag.StringVar(&topicCtrlThrottle, "topic-throttle-ctrl", os.Getenv("MQTT_TOPIC_THROTTLE_CTRL"), "Mqtt topic to send throttle instructions, use MQTT_TOPIC_THROTTLE_CTRL if args not set")

	flag.StringVar(&lfsPath, "lfs-path", os.Getenv("LFS_PATH"), "LFS installation directory, use LFS_PATH if args not set")
	flag.StringVar(&lfsAddress, "lfs-address", "127.0.0.1", "Address of the computer running LFS")
	flag.StringVar(&listenAddress, "listen-address", "0.0.0.0", "Local address LFS sends OutSim and OutGauge packets to")
	flag.IntVar(&insimPort, "insim-port", cli.InitIntFlag("LFS_INSIM_PORT", 29999), "InSim port, use LFS_INSIM_PORT if args not set")
	flag.StringVar(&insimPassword, "insim-password", os.Getenv("LFS_INSIM_PASSWORD"), "InSim admin password, use LFS_INSIM_PASSWORD if args not set")
	flag.StringVar(&commandPrefix, "command-prefix", "!", "Prefix of the text commands typed in LFS")
	flag.IntVar(&vjoyPort, "vjoy-port", cli.InitIntFlag("VJOY_PORT", controls.DefaultPort), "Virtual joystick relay port, use VJOY_PORT if args not set")
	flag.BoolVar(&debug, "debug", false, "Debug logs")

	var detectionRange, detectionAngle float64
	var noise detection.NoiseConfig
	var noiseSeed int64
	flag.Float64Var(&detectionRange, "detection-range", 20, "Cone detection range in meters")
	flag.Float64Var(&detectionAngle, "detection-angle", 90, "Cone detection field of view in degrees")
	flag.Float64Var(&noise.PositionSigma, "noise-position", 0, "Standard deviation of the detected cones position, in meters")
	flag.Float64Var(&noise.DropRate, "noise-drop", 0, "Probability to miss a visible cone")
	flag.Float64Var(&noise.UnknownRate, "noise-unknown", 0, "Probability to lose the colour of a detected cone")
	flag.Float64Var(&noise.PhantomRate, "noise-phantom", 0, "Probability to detect a phantom cone")
	flag.Int64Var(&noiseSeed, "noise-seed", time.Now().UnixNano(), "Seed of the detection noise")

	var frameWidth, frameHeight int
	var frameScale float64
	flag.IntVar(&frameWidth, "frame-width", render.DefaultWidth, "image width")
	flag.IntVar(&frameHeight, "frame-height", render.DefaultHeight, "image height")
	flag.Float64Var(&frameScale, "frame-scale", render.DefaultScale, "pixels per meter")

	flag.Parse()
	if len(os.Args) <= 1 {
		flag.PrintDefaults()
		os.Exit(1)
	}

	config := zap.NewDevelopmentConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	lgr, err := config.Build()
	if err != nil {
		log.Fatalf("unable to init logger: %v", err)
	}
	defer func() {
		if err := lgr.Sync(); err != nil {
			log.Printf("unable to Sync logger: %v\n", err)
		}
	}()
	zap.ReplaceGlobals(lgr)

	lfsCfg, err := simulator.LoadConfig(lfsPath)
	if err != nil {
		zap.S().Fatalf("unable to check LFS configuration: %v", err)
	}

	model, err := detectionModel(detectionRange, detectionAngle, noise, noiseSeed)
	if err != nil {
		zap.S().Fatalf("unable to init detection model: %v", err)
	}
	zap.S().Infof("detection model: %v", model)

	client, err := cli.Connect(mqttBroker, username, password, clientId)
	if err != nil {
		zap.S().Fatalf("unable to connect to events broker: %v", err)
	}
	defer client.Disconnect(10)

	var prefix byte
	if commandPrefix != "" {
		prefix = commandPrefix[0]
	}
	gtw := gateway.New(gateway.Config{
		OutSimAddress:   net.JoinHostPort(listenAddress, strconv.Itoa(lfsCfg.OutSim.Port)),
		OutGaugeAddress: net.JoinHostPort(listenAddress, strconv.Itoa(lfsCfg.OutGauge.Port)),
		InSimAddress:    net.JoinHostPort(lfsAddress, strconv.Itoa(insimPort)),
		InSimPassword:   insimPassword,
		CommandPrefix:   prefix,
		LayoutDir:       lfsCfg.LayoutDir(),
		FrameName:       "lfsd",
	}, perception.New(model), render.New(frameWidth, frameHeight, frameScale))
	defer gtw.Stop()

	gtw.OnRaceStart(func() { zap.S().Info("race started") })
	gtw.OnObjectHit(func(hit insim.ObjectHit) { zap.S().Infof("%v", hit) })
	gtw.OnCommand(func(cmd insim.Command) { zap.S().Infof("%v from connection %d", cmd, cmd.UCID) })

	ctrl := controls.New(net.JoinHostPort(lfsAddress, strconv.Itoa(vjoyPort)))
	if err := ctrl.Start(); err != nil {
		zap.S().Fatalf("unable to start controls: %v", err)
	}
	defer ctrl.Stop()

	msgPub := events.NewMsgPublisher(
		gtw,
		events.NewMqttPublisher(client, byte(mqttQos), mqttRetain),
		topics,
	)
	defer msgPub.Stop()
	msgPub.Start()

	cli.HandleExit(gtw)

	if topicCtrlSteering != "" {
		zap.S().Info("configure mqtt route on steering command")
		client.Subscribe(topicCtrlSteering, byte(mqttQos), func(client mqtt.Client, message mqtt.Message) {
			onSteeringCommand(ctrl, message)
		})
	}
	if topicCtrlThrottle != "" {
		zap.S().Info("configure mqtt route on throttle command")
		client.Subscribe(topicCtrlThrottle, byte(mqttQos), func(client mqtt.Client, message mqtt.Message) {
			onThrottleCommand(ctrl, message)
		})
	}

	err = gtw.Start()
	if err != nil {
		zap.S().Fatalf("unable to start service: %v", err)
	}
}

func detectionModel(detectionRange, detectionAngle float64, noise detection.NoiseConfig, seed int64) (detection.Model, error) {
	conical, err := detection.NewConical(detectionRange, detectionAngle)
	if err != nil {
		return nil, err
	}
	if noise == (detection.NoiseConfig{}) {
		return conical, nil
	}
	noise.PhantomRange = detectionRange
	noisy, err := detection.NewNoisy(conical, noise, seed)
	if err != nil {
		return nil, fmt.Errorf("unable to init detection noise: %w", err)
	}
	return noisy, nil
}

func onSteeringCommand(c controls.SteeringController, message mqtt.Message) {
	var steeringMsg events2.SteeringMessage
	err := proto.Unmarshal(message.Payload(), &steeringMsg)
	if err != nil {
		zap.S().Errorf("unable to unmarshal steering msg: %v", err)
		return
	}
	c.WriteSteering(&steeringMsg)
}

func onThrottleCommand(c controls.ThrottleController, message mqtt.Message) {
	var throttleMsg events2.ThrottleMessage
	err := proto.Unmarshal(message.Payload(), &throttleMsg)
	if err != nil {
		zap.S().Errorf("unable to unmarshal throttle msg: %v", err)
		return
	}
	c.WriteThrottle(&throttleMsg)
}
