package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v4/stdlib"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pinboard/pkg/common"
	"pinboard/pkg/config"
	"pinboard/pkg/feed"
	"pinboard/pkg/imagestore"
	"pinboard/pkg/logger"
	"pinboard/pkg/mailer"
	"pinboard/pkg/middleware"
	"pinboard/pkg/post"
	postapi "pinboard/pkg/post/api"
	"pinboard/pkg/ratelimit"
	"pinboard/pkg/sessions"
	"pinboard/pkg/user"
	userapi "pinboard/pkg/user/api"
	"pinboard/pkg/validation"
)

func main() {
	seedOnly := flag.Bool("seed", false, "fill empty databases with fake users and posts, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalln("main:", err)
	}
	zapLogger := logger.Run(cfg.LogLevel)
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		zapLogger.Fatalw("unable to connect to database", "err", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		zapLogger.Fatalw("unable to reach PostgreSQL", "err", err)
	}

	redisPool := sessions.NewPool(cfg.RedisAddr)
	defer redisPool.Close()

	mongoCtx, mongoCtxCancel := context.WithTimeout(ctx, 3*time.Second)
	defer mongoCtxCancel()
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		zapLogger.Fatalw("can't connect to MongoDB", "err", err)
	}
	if err := mongoClient.Ping(mongoCtx, nil); err != nil {
		zapLogger.Fatalw("unable to connect to MongoDB", "err", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			zapLogger.Errorw("failed disconnecting from MongoDB", "err", err)
		}
	}()

	usersRepo := user.NewUserRepo(db)
	if err := usersRepo.EnsureSchema(ctx); err != nil {
		zapLogger.Fatalw("failed preparing users schema", "err", err)
	}
	postsRepo := post.NewPostRepo(mongoClient.Database(cfg.MongoDB).Collection("posts"))
	if err := postsRepo.EnsureIndexes(mongoCtx); err != nil {
		zapLogger.Fatalw("failed creating posts indexes", "err", err)
	}

	if *seedOnly {
		// Generate fake content to have better UI experience
		if err := seed(ctx, usersRepo, postsRepo); err != nil {
			zapLogger.Fatalw("seeding failed", "err", err)
		}
		return
	}

	images, err := imagestore.New(cfg.UploadDir, cfg.PublicURL)
	if err != nil {
		zapLogger.Fatalw("image store unavailable", "err", err)
	}

	var sender mailer.Sender = mailer.LogSender{}
	if cfg.SMTPAddr != "" {
		sender = mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword)
	}
	mail, err := mailer.New(cfg.MailFrom, sender)
	if err != nil {
		zapLogger.Fatalw("mailer unavailable", "err", err)
	}

	validator := validation.New()
	sessionManager := sessions.NewSessionManager(cfg.SecretKey, redisPool)
	assembler := feed.NewAssembler(postsRepo, usersRepo)

	postHandler := postapi.NewPostHandler(postsRepo, assembler, usersRepo, images, validator, cfg.MaxPageLimit)
	userHandler := userapi.NewUserHandler(usersRepo, sessionManager, mail, validator,
		cfg.PublicURL, strings.HasPrefix(cfg.PublicURL, "https://"))

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	requireAuth := middleware.RequireAuth

	// Posts. Fixed paths go before /posts/{postId}.
	api.HandleFunc("/posts", postHandler.List).Methods("GET")
	api.HandleFunc("/posts", requireAuth(postHandler.Create)).Methods("POST")
	api.HandleFunc("/posts/search", postHandler.List).Methods("GET")
	api.HandleFunc("/posts/user/me", requireAuth(postHandler.Mine)).Methods("GET")
	api.HandleFunc("/posts/user/me/saved-posts", requireAuth(postHandler.SavedFeed)).Methods("GET")
	api.HandleFunc("/posts/user/me/comments", requireAuth(postHandler.MyComments)).Methods("GET")
	api.HandleFunc("/posts/user/{userId}", postHandler.ByUser).Methods("GET")
	api.HandleFunc("/posts/user/{userId}/comments", postHandler.UserComments).Methods("GET")
	api.HandleFunc("/posts/{postId}", postHandler.Get).Methods("GET")
	api.HandleFunc("/posts/{postId}", requireAuth(postHandler.Update)).Methods("PATCH")
	api.HandleFunc("/posts/{postId}", requireAuth(postHandler.Delete)).Methods("DELETE")
	api.HandleFunc("/posts/{postId}/like", requireAuth(postHandler.Like)).Methods("POST")
	api.HandleFunc("/posts/{postId}/save", requireAuth(postHandler.Save)).Methods("POST")

	// Comments
	api.HandleFunc("/posts/{postId}/comment", postHandler.ListComments).Methods("GET")
	api.HandleFunc("/posts/{postId}/comment", requireAuth(postHandler.AddComment)).Methods("POST")
	api.HandleFunc("/posts/{postId}/comment/{commentId}", requireAuth(postHandler.EditComment)).Methods("PATCH")
	api.HandleFunc("/posts/{postId}/comment/{commentId}", requireAuth(postHandler.DeleteComment)).Methods("DELETE")

	// Auth
	authLimiter := ratelimit.New(5, 10)
	limited := func(h http.HandlerFunc) http.Handler {
		return authLimiter.Middleware(h)
	}
	api.Handle("/auth/register", limited(userHandler.Register)).Methods("POST")
	api.Handle("/auth/login", limited(userHandler.LogIn)).Methods("POST")
	api.HandleFunc("/auth/logout", userHandler.LogOut).Methods("GET")
	api.HandleFunc("/auth/verify", requireAuth(userHandler.ResendVerification)).Methods("GET")
	api.HandleFunc("/auth/verify/{token}", userHandler.VerifyAccount).Methods("GET")
	api.Handle("/auth/resetPassword", limited(userHandler.RequestPasswordReset)).Methods("POST")
	api.Handle("/auth/resetPassword/{token}", limited(userHandler.ResetPassword)).Methods("POST")

	// Users
	api.HandleFunc("/users/me", requireAuth(userHandler.Me)).Methods("GET")
	api.HandleFunc("/users/me", requireAuth(userHandler.UpdateMe)).Methods("PATCH")
	api.HandleFunc("/users/{userId}", userHandler.Get).Methods("GET")

	r.PathPrefix(imagestore.URLPrefix).Handler(images.Handler()).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		common.WriteMsg(w, "Can't find "+r.URL.Path+" on this server!", http.StatusNotFound)
	})

	logMiddleware := middleware.NewLoggingMiddleware(zapLogger)
	r.Use(logMiddleware.SetupTracing)
	r.Use(logMiddleware.SetupLogging)
	r.Use(logMiddleware.AccessLog)

	auth := middleware.NewAuthMiddleware(sessionManager, usersRepo)
	r.Use(auth.Middleware)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.ClientOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Errorw("graceful shutdown failed", "err", err)
		}
	}()

	zapLogger.Infow("serving", "addr", cfg.HTTPAddr, "public_url", cfg.PublicURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zapLogger.Fatalw("server stopped", "err", err)
	}
}
