package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - CVAnalysis, AnalysisResult from cv.go
// - ChatMessage, ChatSession, SessionMessage from chat.go
// - VoiceSession from voice.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication, multi-provider sign-in
// 2. refresh_tokens - Hashed opaque tokens backing the refresh cookie
// 3. cv_analyses - One row per uploaded CV, carrying the extracted text and
//    the structured analysis payload produced by the background pipeline
// 4. chat_messages - The flat assistant conversation (one row per exchange)
// 5. chat_sessions - Named conversation containers, at most one active
// 6. session_messages - Ordered turn-by-turn messages inside a chat session
// 7. voice_sessions - One row per live voice WebSocket connection
